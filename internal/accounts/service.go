package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrInvalidUsername indicates an empty or oversized username.
	ErrInvalidUsername = errors.New("accounts: invalid username")
	// ErrWeakPassword indicates the password does not meet the length floor.
	ErrWeakPassword = errors.New("accounts: password too short")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("accounts: username already taken")
	// ErrInvalidCredentials indicates an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
)

const (
	maxUsernameLength = 190
	minPasswordLength = 8
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "accounts.service.new"
	opRegister   = "accounts.register"
	opLogin      = "accounts.login"
	opGet        = "accounts.get"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider generates identifiers for new users.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig wires the account service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	BcryptCost int
	Logger     *zap.Logger
}

// Service registers users and checks passwords. Usernames are compared
// case-insensitively by storing them lowercased.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	clock      func() time.Time
	cost       int
	logger     *zap.Logger
}

// NewService validates the configuration and returns an account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		clock:      clock,
		cost:       cost,
		logger:     logger,
	}, nil
}

// Register creates an account and returns it with the hash cleared.
func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))
	if normalized == "" || len(normalized) > maxUsernameLength {
		return User{}, newServiceError(opRegister, "invalid_username", ErrInvalidUsername)
	}
	if len(password) < minPasswordLength {
		return User{}, newServiceError(opRegister, "weak_password", ErrWeakPassword)
	}

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", normalized).Take(&existing).Error
	if err == nil {
		return User{}, newServiceError(opRegister, "duplicate", ErrUsernameTaken)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opRegister, "lookup_failed", err, zap.String("username", normalized))
		return User{}, newServiceError(opRegister, "lookup_failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, newServiceError(opRegister, "hash_failed", err)
	}

	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, newServiceError(opRegister, "id_generation_failed", err)
	}

	user := User{
		UserID:           userID,
		Username:         normalized,
		Email:            strings.TrimSpace(email),
		PasswordHash:     string(hash),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logError(opRegister, "persist_failed", err, zap.String("username", normalized))
		return User{}, newServiceError(opRegister, "persist_failed", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// Login verifies the password and returns the account with the hash cleared.
// Unknown usernames and wrong passwords both map to ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, newServiceError(opLogin, "unknown_user", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opLogin, "lookup_failed", err, zap.String("username", normalized))
		return User{}, newServiceError(opLogin, "lookup_failed", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, newServiceError(opLogin, "wrong_password", ErrInvalidCredentials)
	}

	user.PasswordHash = ""
	return user, nil
}

// Get returns one account by id with the hash cleared.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, newServiceError(opGet, "unknown_user", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opGet, "lookup_failed", err, zap.String("user_id", userID))
		return User{}, newServiceError(opGet, "lookup_failed", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("accounts service error", attrs...)
}
