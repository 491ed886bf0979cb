package lists

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingStore    = errors.New("membership store is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew = "lists.service.new"
	opAdd        = "lists.add"
	opRemove     = "lists.remove"
	opReplay     = "lists.replay"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig wires the membership service dependencies.
type ServiceConfig struct {
	Database *gorm.DB
	Store    *Store
	Logger   *zap.Logger
}

// Service keeps the in-memory store and the memberships table in step. Writes
// go through the store first, then persist the resolved row; reads are served
// from the store alone.
type Service struct {
	db     *gorm.DB
	store  *Store
	logger *zap.Logger
}

// NewService validates the configuration and returns a membership service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{db: cfg.Database, store: cfg.Store, logger: logger}, nil
}

// Add upserts a membership and persists the resolved row.
func (s *Service) Add(ctx context.Context, userID, placeID string, kind ListKind, meta Metadata) (Entry, error) {
	entry, err := s.store.Add(userID, placeID, kind, meta)
	if err != nil {
		return Entry{}, newServiceError(opAdd, "store_rejected", err)
	}

	record := MembershipRecord{
		UserID:         userID,
		PlaceID:        placeID,
		Kind:           string(entry.Kind),
		Note:           entry.Metadata.Note,
		Priority:       entry.Metadata.Priority,
		Rating:         entry.Metadata.Rating,
		AddedAtSeconds: entry.Metadata.AddedAt.Unix(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "place_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"note", "priority", "rating", "added_at_s",
		}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opAdd, "persist_failed", err,
			zap.String("user_id", userID),
			zap.String("place_id", placeID),
			zap.String("kind", string(kind)))
		return Entry{}, newServiceError(opAdd, "persist_failed", err)
	}
	return entry, nil
}

// Remove deletes a membership from the store and the table. Absent rows are
// a no-op.
func (s *Service) Remove(ctx context.Context, userID, placeID string, kind ListKind) error {
	kind, err := ParseListKind(string(kind))
	if err != nil {
		return newServiceError(opRemove, "invalid_kind", err)
	}

	s.store.Remove(userID, placeID, kind)

	err = s.db.WithContext(ctx).
		Where("user_id = ? AND place_id = ? AND kind = ?", userID, placeID, string(kind)).
		Delete(&MembershipRecord{}).Error
	if err != nil {
		s.logError(opRemove, "delete_failed", err,
			zap.String("user_id", userID),
			zap.String("place_id", placeID),
			zap.String("kind", string(kind)))
		return newServiceError(opRemove, "delete_failed", err)
	}
	return nil
}

// RemovePlace drops every membership of the place, in memory and on disk.
func (s *Service) RemovePlace(ctx context.Context, placeID string) error {
	s.store.RemovePlace(placeID)

	err := s.db.WithContext(ctx).
		Where("place_id = ?", placeID).
		Delete(&MembershipRecord{}).Error
	if err != nil {
		s.logError(opRemove, "cascade_failed", err, zap.String("place_id", placeID))
		return newServiceError(opRemove, "cascade_failed", err)
	}
	return nil
}

// Replay loads every persisted membership into the store. Called once on
// startup before the service takes traffic.
func (s *Service) Replay(ctx context.Context) error {
	var records []MembershipRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		s.logError(opReplay, "query_failed", err)
		return newServiceError(opReplay, "query_failed", err)
	}

	for _, record := range records {
		meta := Metadata{
			Note:     record.Note,
			Priority: record.Priority,
			Rating:   record.Rating,
			AddedAt:  time.Unix(record.AddedAtSeconds, 0).UTC(),
		}
		if _, err := s.store.Add(record.UserID, record.PlaceID, ListKind(record.Kind), meta); err != nil {
			s.logError(opReplay, "row_rejected", err,
				zap.String("user_id", record.UserID),
				zap.String("place_id", record.PlaceID),
				zap.String("kind", record.Kind))
			return newServiceError(opReplay, "row_rejected", err)
		}
	}

	s.logger.Info("list memberships replayed", zap.Int("rows", len(records)))
	return nil
}

// Status reports list presence for one (user, place) pair.
func (s *Service) Status(userID, placeID string) Status {
	return s.store.GetStatus(userID, placeID)
}

// List returns the user's entries for one kind in presentation order.
func (s *Service) List(userID string, kind ListKind) []Entry {
	return s.store.ListForUser(userID, kind)
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
	s.logger.Error("lists service error", attrs...)
}
