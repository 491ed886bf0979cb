package accounts

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type sequenceIDs struct{ next int }

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("user-%03d", s.next), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDs{},
		Clock:      func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) },
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return service, db
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{IDProvider: &sequenceIDs{}})
	require.Error(t, err)
	_, err = NewService(ServiceConfig{Database: openTestDatabase(t)})
	require.Error(t, err)
}

func TestRegisterHashesAndNormalizes(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, " Alice ", "alice@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Empty(t, user.PasswordHash)

	var stored User
	require.NoError(t, db.Take(&stored).Error)
	require.NotEmpty(t, stored.PasswordHash)
	require.NotContains(t, stored.PasswordHash, "correct horse")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "   ", "", "long enough password")
	require.ErrorIs(t, err, ErrInvalidUsername)

	_, err = service.Register(ctx, "bob", "", "short")
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = service.Register(ctx, "carol", "", "long enough password")
	require.NoError(t, err)
	_, err = service.Register(ctx, "CAROL", "", "long enough password")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestLogin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "dave", "dave@example.com", "opensesame!")
	require.NoError(t, err)

	user, err := service.Login(ctx, "Dave", "opensesame!")
	require.NoError(t, err)
	require.Equal(t, registered.UserID, user.UserID)
	require.Empty(t, user.PasswordHash)

	_, err = service.Login(ctx, "dave", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = service.Login(ctx, "nobody", "opensesame!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGet(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "erin", "", "long enough password")
	require.NoError(t, err)

	user, err := service.Get(ctx, registered.UserID)
	require.NoError(t, err)
	require.Equal(t, "erin", user.Username)
	require.Empty(t, user.PasswordHash)

	_, err = service.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
