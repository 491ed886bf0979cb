package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	// ErrGroupNotFound indicates an unknown group identifier.
	ErrGroupNotFound = errors.New("groups: group not found")
	// ErrNotMember indicates the acting user does not belong to the group.
	ErrNotMember = errors.New("groups: user is not a member")
	// ErrNotAdmin indicates the acting user lacks admin rights for the operation.
	ErrNotAdmin = errors.New("groups: admin role required")
	// ErrAlreadyMember indicates the target user already belongs to the group.
	ErrAlreadyMember = errors.New("groups: user is already a member")
	// ErrLastAdmin indicates the operation would leave the group without an admin.
	ErrLastAdmin = errors.New("groups: cannot remove the last admin")
	// ErrInvalidGroupName indicates an empty or oversized group name.
	ErrInvalidGroupName = errors.New("groups: invalid group name")
)

const maxNameLength = 190

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
	opServiceNew   = "groups.service.new"
	opCreate       = "groups.create"
	opGet          = "groups.get"
	opListForUser  = "groups.list_for_user"
	opAddMember    = "groups.add_member"
	opRemoveMember = "groups.remove_member"
	opMemberIDs    = "groups.member_ids"
	opDelete       = "groups.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider generates identifiers for new groups.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig wires the group service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages group headers and rosters. The creator becomes the first
// admin; only admins add or remove other members, while any member may leave
// on their own.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a group service.
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
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create stores a new group and enrolls the creator as admin.
func (s *Service) Create(ctx context.Context, name, description, creatorID string) (Group, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > maxNameLength {
		return Group{}, newServiceError(opCreate, "invalid_name", ErrInvalidGroupName)
	}

	groupID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Group{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	group := Group{
		GroupID:          groupID,
		Name:             trimmed,
		Description:      strings.TrimSpace(description),
		CreatedBy:        creatorID,
		CreatedAtSeconds: now,
	}
	creator := Membership{
		GroupID:        groupID,
		UserID:         creatorID,
		Role:           string(RoleAdmin),
		AddedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&creator).Error
	})
	if txErr != nil {
		s.logError(opCreate, "persist_failed", txErr, zap.String("group_id", groupID))
		return Group{}, newServiceError(opCreate, "persist_failed", txErr)
	}
	return group, nil
}

// Get returns a group visible to the given user. Non-members get
// ErrGroupNotFound rather than a role hint.
func (s *Service) Get(ctx context.Context, groupID, userID string) (Group, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return Group{}, newServiceError(opGet, "load_failed", err)
	}
	if _, err := s.loadMembership(ctx, groupID, userID); err != nil {
		return Group{}, newServiceError(opGet, "not_member", ErrGroupNotFound)
	}
	return group, nil
}

// ListForUser returns every group the user belongs to, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Group, error) {
	var groups []Group
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.group_id").
		Where("group_members.user_id = ?", userID).
		Order("groups.created_at_s DESC, groups.group_id").
		Find(&groups).Error
	if err != nil {
		s.logError(opListForUser, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListForUser, "query_failed", err)
	}
	return groups, nil
}

// AddMember enrolls a user. The actor must be an admin of the group.
func (s *Service) AddMember(ctx context.Context, groupID, actorID, userID string, role Role) error {
	if role != RoleAdmin {
		role = RoleMember
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return newServiceError(opAddMember, "forbidden", err)
	}

	if _, err := s.loadMembership(ctx, groupID, userID); err == nil {
		return newServiceError(opAddMember, "duplicate", ErrAlreadyMember)
	} else if !errors.Is(err, ErrNotMember) {
		return newServiceError(opAddMember, "lookup_failed", err)
	}

	member := Membership{
		GroupID:        groupID,
		UserID:         userID,
		Role:           string(role),
		AddedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		s.logError(opAddMember, "persist_failed", err,
			zap.String("group_id", groupID), zap.String("user_id", userID))
		return newServiceError(opAddMember, "persist_failed", err)
	}
	return nil
}

// RemoveMember drops a user from the roster. Admins remove anyone; a
// non-admin may only remove themselves. The last admin cannot leave.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, userID string) error {
	actor, err := s.loadMembership(ctx, groupID, actorID)
	if err != nil {
		return newServiceError(opRemoveMember, "forbidden", err)
	}
	if actor.Role != string(RoleAdmin) && actorID != userID {
		return newServiceError(opRemoveMember, "forbidden", ErrNotAdmin)
	}

	target, err := s.loadMembership(ctx, groupID, userID)
	if err != nil {
		return newServiceError(opRemoveMember, "not_member", err)
	}

	if target.Role == string(RoleAdmin) {
		var admins int64
		err := s.db.WithContext(ctx).Model(&Membership{}).
			Where("group_id = ? AND role = ?", groupID, string(RoleAdmin)).
			Count(&admins).Error
		if err != nil {
			s.logError(opRemoveMember, "count_failed", err, zap.String("group_id", groupID))
			return newServiceError(opRemoveMember, "count_failed", err)
		}
		if admins <= 1 {
			return newServiceError(opRemoveMember, "last_admin", ErrLastAdmin)
		}
	}

	err = s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&Membership{}).Error
	if err != nil {
		s.logError(opRemoveMember, "delete_failed", err,
			zap.String("group_id", groupID), zap.String("user_id", userID))
		return newServiceError(opRemoveMember, "delete_failed", err)
	}
	return nil
}

// MemberIDs returns the roster of a group the user belongs to, ascending.
func (s *Service) MemberIDs(ctx context.Context, groupID, userID string) ([]string, error) {
	if _, err := s.loadMembership(ctx, groupID, userID); err != nil {
		return nil, newServiceError(opMemberIDs, "not_member", ErrGroupNotFound)
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&Membership{}).
		Where("group_id = ?", groupID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		s.logError(opMemberIDs, "query_failed", err, zap.String("group_id", groupID))
		return nil, newServiceError(opMemberIDs, "query_failed", err)
	}
	return ids, nil
}

// Members returns the roster rows of a group the user belongs to.
func (s *Service) Members(ctx context.Context, groupID, userID string) ([]Membership, error) {
	if _, err := s.loadMembership(ctx, groupID, userID); err != nil {
		return nil, newServiceError(opMemberIDs, "not_member", ErrGroupNotFound)
	}

	var members []Membership
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("user_id").
		Find(&members).Error
	if err != nil {
		s.logError(opMemberIDs, "query_failed", err, zap.String("group_id", groupID))
		return nil, newServiceError(opMemberIDs, "query_failed", err)
	}
	return members, nil
}

// Delete removes the group and its roster. Admin only.
func (s *Service) Delete(ctx context.Context, groupID, actorID string) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return newServiceError(opDelete, "forbidden", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&Membership{}).Error; err != nil {
			return err
		}
		return tx.Where("group_id = ?", groupID).Delete(&Group{}).Error
	})
	if txErr != nil {
		s.logError(opDelete, "delete_failed", txErr, zap.String("group_id", groupID))
		return newServiceError(opDelete, "delete_failed", txErr)
	}
	return nil
}

func (s *Service) loadGroup(ctx context.Context, groupID string) (Group, error) {
	var group Group
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Group{}, ErrGroupNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("group_id", groupID))
		return Group{}, err
	}
	return group, nil
}

func (s *Service) loadMembership(ctx context.Context, groupID, userID string) (Membership, error) {
	var member Membership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Membership{}, ErrNotMember
	}
	if err != nil {
		return Membership{}, err
	}
	return member, nil
}

func (s *Service) requireAdmin(ctx context.Context, groupID, userID string) error {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return err
	}
	member, err := s.loadMembership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member.Role != string(RoleAdmin) {
		return ErrNotAdmin
	}
	return nil
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
	s.logger.Error("groups service error", attrs...)
}
