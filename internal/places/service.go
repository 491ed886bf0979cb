package places

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wanderlist/wanderlist-api/internal/geo"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIndex      = errors.New("spatial index is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrPlaceNotFound indicates an unknown place identifier.
	ErrPlaceNotFound = errors.New("places: place not found")
	// ErrInvalidPlaceName indicates an empty or oversized place name.
	ErrInvalidPlaceName = errors.New("places: invalid place name")
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
	opServiceNew = "places.service.new"
	opCreate     = "places.create"
	opUpdate     = "places.update"
	opDelete     = "places.delete"
	opReplay     = "places.replay"
	opStats      = "places.stats"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider generates identifiers for new places.
type IDProvider interface {
	NewID() (string, error)
}

// MembershipCascade removes every list membership referencing a deleted
// place. *lists.Service satisfies it.
type MembershipCascade interface {
	RemovePlace(ctx context.Context, placeID string) error
}

// ServiceConfig wires the place catalog dependencies. Memberships may be nil
// when no list cleanup is wanted on delete.
type ServiceConfig struct {
	Database    *gorm.DB
	Index       *spatial.Index
	IDProvider  IDProvider
	Memberships MembershipCascade
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service is the place catalog. It keeps an in-memory copy of every place for
// attribute lookups, mirrors coordinates into the spatial index and persists
// rows through GORM.
type Service struct {
	db          *gorm.DB
	index       *spatial.Index
	idProvider  IDProvider
	memberships MembershipCascade
	clock       func() time.Time
	logger      *zap.Logger

	mu   sync.RWMutex
	byID map[string]Place
}

// NewService validates the configuration and returns a catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Index == nil {
		return nil, newServiceError(opServiceNew, "missing_index", errMissingIndex)
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
		db:          cfg.Database,
		index:       cfg.Index,
		idProvider:  cfg.IDProvider,
		memberships: cfg.Memberships,
		clock:       clock,
		logger:      logger,
		byID:        make(map[string]Place),
	}, nil
}

// Input carries the writable fields of a place.
type Input struct {
	Name     string
	City     string
	State    string
	Country  string
	Category string
	Lat      float64
	Lon      float64
}

func (in Input) validate() error {
	trimmed := strings.TrimSpace(in.Name)
	if trimmed == "" || len(trimmed) > maxNameLength {
		return ErrInvalidPlaceName
	}
	return geo.ValidateCoordinate(in.Lat, in.Lon)
}

// Create stores a new manually entered place and indexes it.
func (s *Service) Create(ctx context.Context, input Input, createdBy string) (Place, error) {
	if err := input.validate(); err != nil {
		return Place{}, newServiceError(opCreate, "invalid_input", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Place{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	place := Place{
		PlaceID:          id,
		SourceID:         manualSourceID(id),
		Name:             strings.TrimSpace(input.Name),
		City:             strings.TrimSpace(input.City),
		State:            strings.TrimSpace(input.State),
		Country:          strings.TrimSpace(input.Country),
		Category:         strings.TrimSpace(input.Category),
		Lat:              input.Lat,
		Lon:              input.Lon,
		CreatedBy:        createdBy,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	if err := s.db.WithContext(ctx).Create(&place).Error; err != nil {
		s.logError(opCreate, "persist_failed", err, zap.String("place_id", id))
		return Place{}, newServiceError(opCreate, "persist_failed", err)
	}
	if err := s.register(place); err != nil {
		s.logError(opCreate, "index_failed", err, zap.String("place_id", id))
		return Place{}, newServiceError(opCreate, "index_failed", err)
	}
	return place, nil
}

// Update rewrites a place's attributes and relocates it in the index when
// its coordinates change.
func (s *Service) Update(ctx context.Context, placeID string, input Input) (Place, error) {
	if err := input.validate(); err != nil {
		return Place{}, newServiceError(opUpdate, "invalid_input", err)
	}

	s.mu.RLock()
	existing, ok := s.byID[placeID]
	s.mu.RUnlock()
	if !ok {
		return Place{}, newServiceError(opUpdate, "not_found", ErrPlaceNotFound)
	}

	updated := existing
	updated.Name = strings.TrimSpace(input.Name)
	updated.City = strings.TrimSpace(input.City)
	updated.State = strings.TrimSpace(input.State)
	updated.Country = strings.TrimSpace(input.Country)
	updated.Category = strings.TrimSpace(input.Category)
	updated.Lat = input.Lat
	updated.Lon = input.Lon

	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		s.logError(opUpdate, "persist_failed", err, zap.String("place_id", placeID))
		return Place{}, newServiceError(opUpdate, "persist_failed", err)
	}
	if err := s.register(updated); err != nil {
		s.logError(opUpdate, "index_failed", err, zap.String("place_id", placeID))
		return Place{}, newServiceError(opUpdate, "index_failed", err)
	}
	return updated, nil
}

// Delete removes a place from the catalog, the index and, when a cascade is
// wired, every user list referencing it.
func (s *Service) Delete(ctx context.Context, placeID string) error {
	s.mu.RLock()
	_, ok := s.byID[placeID]
	s.mu.RUnlock()
	if !ok {
		return newServiceError(opDelete, "not_found", ErrPlaceNotFound)
	}

	if err := s.db.WithContext(ctx).Where("place_id = ?", placeID).Delete(&Place{}).Error; err != nil {
		s.logError(opDelete, "persist_failed", err, zap.String("place_id", placeID))
		return newServiceError(opDelete, "persist_failed", err)
	}

	s.mu.Lock()
	delete(s.byID, placeID)
	s.mu.Unlock()
	s.index.Remove(placeID)

	if s.memberships != nil {
		if err := s.memberships.RemovePlace(ctx, placeID); err != nil {
			s.logError(opDelete, "cascade_failed", err, zap.String("place_id", placeID))
			return newServiceError(opDelete, "cascade_failed", err)
		}
	}
	return nil
}

// Replay loads every persisted place into the in-memory map and the spatial
// index. Called once on startup.
func (s *Service) Replay(ctx context.Context) error {
	var records []Place
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		s.logError(opReplay, "query_failed", err)
		return newServiceError(opReplay, "query_failed", err)
	}

	for _, place := range records {
		if err := s.register(place); err != nil {
			s.logError(opReplay, "row_rejected", err, zap.String("place_id", place.PlaceID))
			return newServiceError(opReplay, "row_rejected", err)
		}
	}

	s.logger.Info("places replayed", zap.Int("rows", len(records)))
	return nil
}

func (s *Service) register(place Place) error {
	if err := s.index.Insert(place.PlaceID, place.Lat, place.Lon); err != nil {
		return err
	}
	s.mu.Lock()
	s.byID[place.PlaceID] = place
	s.mu.Unlock()
	return nil
}

// Get returns one place by id.
func (s *Service) Get(placeID string) (Place, error) {
	s.mu.RLock()
	place, ok := s.byID[placeID]
	s.mu.RUnlock()
	if !ok {
		return Place{}, ErrPlaceNotFound
	}
	return place, nil
}

// GetPlace exposes the filterable attributes of a place for proximity
// queries.
func (s *Service) GetPlace(_ context.Context, placeID string) (spatial.PlaceAttributes, bool) {
	s.mu.RLock()
	place, ok := s.byID[placeID]
	s.mu.RUnlock()
	if !ok {
		return spatial.PlaceAttributes{}, false
	}
	return place.Attributes(), true
}

// Category resolves a place id to its category for group aggregation.
func (s *Service) Category(_ context.Context, placeID string) (string, bool) {
	s.mu.RLock()
	place, ok := s.byID[placeID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	return place.Category, true
}

// Count reports the catalog size.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// StateCount is one row of the top-states breakdown.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Stats summarizes the catalog.
type Stats struct {
	Count     int              `json:"count"`
	TopStates []StateCount     `json:"top_states"`
	Bounds    *geo.BoundingBox `json:"bounds,omitempty"`
}

const topStatesLimit = 5

// Summarize computes catalog statistics from the in-memory copy.
func (s *Service) Summarize() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Count: len(s.byID), TopStates: []StateCount{}}
	if len(s.byID) == 0 {
		return stats
	}

	states := make(map[string]int)
	bounds := geo.BoundingBox{North: -90, South: 90, East: -180, West: 180}
	for _, place := range s.byID {
		if place.State != "" {
			states[place.State]++
		}
		if place.Lat > bounds.North {
			bounds.North = place.Lat
		}
		if place.Lat < bounds.South {
			bounds.South = place.Lat
		}
		if place.Lon > bounds.East {
			bounds.East = place.Lon
		}
		if place.Lon < bounds.West {
			bounds.West = place.Lon
		}
	}
	stats.Bounds = &bounds

	for state, count := range states {
		stats.TopStates = append(stats.TopStates, StateCount{State: state, Count: count})
	}
	sort.Slice(stats.TopStates, func(i, j int) bool {
		if stats.TopStates[i].Count != stats.TopStates[j].Count {
			return stats.TopStates[i].Count > stats.TopStates[j].Count
		}
		return stats.TopStates[i].State < stats.TopStates[j].State
	})
	if len(stats.TopStates) > topStatesLimit {
		stats.TopStates = stats.TopStates[:topStatesLimit]
	}
	return stats
}

// snapshot returns the catalog sorted by id, for exports.
func (s *Service) snapshot() []Place {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Place, 0, len(s.byID))
	for _, place := range s.byID {
		result = append(result, place)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PlaceID < result[j].PlaceID })
	return result
}

func manualSourceID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "manual_" + compact
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
	s.logger.Error("places service error", attrs...)
}
