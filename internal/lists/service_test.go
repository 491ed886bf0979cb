package lists

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lists.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&MembershipRecord{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *Store) {
	t.Helper()
	store := NewStore(fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	service, err := NewService(ServiceConfig{Database: db, Store: store})
	require.NoError(t, err)
	return service, store
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{Store: NewStore(nil)})
	require.Error(t, err)
	_, err = NewService(ServiceConfig{Database: openTestDatabase(t)})
	require.Error(t, err)
}

func TestServiceAddPersistsResolvedRow(t *testing.T) {
	db := openTestDatabase(t)
	service, _ := newTestService(t, db)
	ctx := context.Background()

	entry, err := service.Add(ctx, "u1", "pl1", ListWishlist, Metadata{Note: "next trip", Priority: 7})
	require.NoError(t, err)
	require.Equal(t, 1, entry.Metadata.Priority) // out-of-range priority resolved before persisting

	var record MembershipRecord
	require.NoError(t, db.Where("user_id = ? AND place_id = ?", "u1", "pl1").Take(&record).Error)
	require.Equal(t, string(ListWishlist), record.Kind)
	require.Equal(t, "next trip", record.Note)
	require.Equal(t, 1, record.Priority)
	require.Equal(t, entry.Metadata.AddedAt.Unix(), record.AddedAtSeconds)
}

func TestServiceAddUpsertsExistingRow(t *testing.T) {
	db := openTestDatabase(t)
	service, _ := newTestService(t, db)
	ctx := context.Background()

	first, err := service.Add(ctx, "u1", "pl1", ListVisited, Metadata{Note: "first"})
	require.NoError(t, err)
	_, err = service.Add(ctx, "u1", "pl1", ListVisited, Metadata{Note: "second"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&MembershipRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var record MembershipRecord
	require.NoError(t, db.Take(&record).Error)
	require.Equal(t, "second", record.Note)
	require.Equal(t, first.Metadata.AddedAt.Unix(), record.AddedAtSeconds)
}

func TestServiceRemoveDeletesRow(t *testing.T) {
	db := openTestDatabase(t)
	service, store := newTestService(t, db)
	ctx := context.Background()

	_, err := service.Add(ctx, "u1", "pl1", ListLiked, Metadata{Rating: 5})
	require.NoError(t, err)
	require.NoError(t, service.Remove(ctx, "u1", "pl1", ListLiked))
	require.NoError(t, service.Remove(ctx, "u1", "pl1", ListLiked)) // absent row is fine

	require.False(t, store.GetStatus("u1", "pl1").Any())
	var count int64
	require.NoError(t, db.Model(&MembershipRecord{}).Count(&count).Error)
	require.Zero(t, count)

	err = service.Remove(ctx, "u1", "pl1", ListKind("starred"))
	require.ErrorIs(t, err, ErrInvalidListKind)
}

func TestServiceRemovePlaceCascades(t *testing.T) {
	db := openTestDatabase(t)
	service, store := newTestService(t, db)
	ctx := context.Background()

	_, err := service.Add(ctx, "u1", "pl1", ListVisited, Metadata{})
	require.NoError(t, err)
	_, err = service.Add(ctx, "u2", "pl1", ListWishlist, Metadata{})
	require.NoError(t, err)
	_, err = service.Add(ctx, "u2", "pl2", ListWishlist, Metadata{})
	require.NoError(t, err)

	require.NoError(t, service.RemovePlace(ctx, "pl1"))

	require.False(t, store.GetStatus("u1", "pl1").Any())
	require.True(t, store.GetStatus("u2", "pl2").Wishlist)
	var count int64
	require.NoError(t, db.Model(&MembershipRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestServiceReplayRestoresStore(t *testing.T) {
	db := openTestDatabase(t)
	service, _ := newTestService(t, db)
	ctx := context.Background()

	_, err := service.Add(ctx, "u1", "pl1", ListVisited, Metadata{Note: "remembered"})
	require.NoError(t, err)
	_, err = service.Add(ctx, "u1", "pl2", ListLiked, Metadata{Rating: 3})
	require.NoError(t, err)

	// Fresh store over the same database simulates a restart.
	rebuilt := NewStore(nil)
	restarted, err := NewService(ServiceConfig{Database: db, Store: rebuilt})
	require.NoError(t, err)
	require.NoError(t, restarted.Replay(ctx))

	status := rebuilt.GetStatus("u1", "pl1")
	require.True(t, status.Visited)
	entries := rebuilt.ListForUser("u1", ListVisited)
	require.Len(t, entries, 1)
	require.Equal(t, "remembered", entries[0].Metadata.Note)

	liked := rebuilt.ListForUser("u1", ListLiked)
	require.Len(t, liked, 1)
	require.Equal(t, 3, liked[0].Metadata.Rating)
}
