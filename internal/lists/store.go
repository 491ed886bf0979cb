package lists

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ListKind names one of the three per-user place lists.
type ListKind string

const (
	// ListVisited records places the user has been to.
	ListVisited ListKind = "visited"
	// ListWishlist records places the user wants to visit.
	ListWishlist ListKind = "wishlist"
	// ListLiked records places the user liked.
	ListLiked ListKind = "liked"
)

// ErrInvalidListKind indicates an unrecognized list kind.
var ErrInvalidListKind = errors.New("lists: invalid list kind")

// ParseListKind validates raw input against the three known kinds.
func ParseListKind(raw string) (ListKind, error) {
	switch ListKind(strings.ToLower(strings.TrimSpace(raw))) {
	case ListVisited:
		return ListVisited, nil
	case ListWishlist:
		return ListWishlist, nil
	case ListLiked:
		return ListLiked, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidListKind, raw)
	}
}

// Metadata carries the list-specific attributes of a membership.
// Note applies to every kind; Priority (1–3) only to wishlist entries;
// Rating (1–5, 0 when unrated) only to liked entries. A zero AddedAt means
// "preserve the existing timestamp, or stamp now for a new entry".
type Metadata struct {
	Note     string
	Priority int
	Rating   int
	AddedAt  time.Time
}

// Status is the per-list presence tuple for one (user, place) pair.
type Status struct {
	Visited  bool `json:"visited"`
	Wishlist bool `json:"in_wishlist"`
	Liked    bool `json:"liked"`
}

// Any reports whether at least one flag is set.
func (s Status) Any() bool {
	return s.Visited || s.Wishlist || s.Liked
}

// Entry is one membership row as returned by list queries.
type Entry struct {
	PlaceID  string
	Kind     ListKind
	Metadata Metadata
}

const (
	defaultPriority = 1
	maxPriority     = 3
	maxRating       = 5
)

// Store is the in-memory membership record: which places sit in which of a
// user's three lists, with metadata. At most one row exists per
// (user, place, kind); re-adding updates metadata instead of duplicating.
// Safe for concurrent use with non-blocking concurrent reads.
type Store struct {
	mu    sync.RWMutex
	clock func() time.Time
	users map[string]map[ListKind]map[string]Metadata
}

// NewStore returns an empty store. A nil clock defaults to time.Now.
func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		clock: clock,
		users: make(map[string]map[ListKind]map[string]Metadata),
	}
}

// Add upserts a membership and returns the row as stored. The original
// added-at timestamp survives a metadata update unless the caller supplies
// one. Out-of-range priorities fall back to 1 and out-of-range ratings to
// unrated; re-liking without a rating keeps the previous rating.
func (s *Store) Add(userID, placeID string, kind ListKind, meta Metadata) (Entry, error) {
	// Bucket under the normalized kind so a mixed-case input is stored where
	// GetStatus and ListForUser look it up.
	kind, err := ParseListKind(string(kind))
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kinds, ok := s.users[userID]
	if !ok {
		kinds = make(map[ListKind]map[string]Metadata)
		s.users[userID] = kinds
	}
	entries, ok := kinds[kind]
	if !ok {
		entries = make(map[string]Metadata)
		kinds[kind] = entries
	}

	previous, exists := entries[placeID]

	switch kind {
	case ListWishlist:
		if meta.Priority < 1 || meta.Priority > maxPriority {
			meta.Priority = defaultPriority
		}
		meta.Rating = 0
	case ListLiked:
		if meta.Rating < 0 || meta.Rating > maxRating {
			meta.Rating = 0
		}
		if meta.Rating == 0 && exists {
			meta.Rating = previous.Rating
		}
		meta.Priority = 0
	default:
		meta.Priority = 0
		meta.Rating = 0
	}

	if meta.AddedAt.IsZero() {
		if exists {
			meta.AddedAt = previous.AddedAt
		} else {
			meta.AddedAt = s.clock().UTC()
		}
	}

	entries[placeID] = meta
	return Entry{PlaceID: placeID, Kind: kind, Metadata: meta}, nil
}

// Remove deletes a membership. Removing an absent row is a no-op.
func (s *Store) Remove(userID, placeID string, kind ListKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.users[userID][kind]
	if !ok {
		return
	}
	delete(entries, placeID)
	if len(entries) == 0 {
		delete(s.users[userID], kind)
		if len(s.users[userID]) == 0 {
			delete(s.users, userID)
		}
	}
}

// RemovePlace drops every membership referencing the place, across all users
// and kinds. Used when a place is deleted from the catalog.
func (s *Store) RemovePlace(placeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, kinds := range s.users {
		for kind, entries := range kinds {
			delete(entries, placeID)
			if len(entries) == 0 {
				delete(kinds, kind)
			}
		}
		if len(kinds) == 0 {
			delete(s.users, userID)
		}
	}
}

// GetStatus reports list presence for the pair. Absent users or places
// simply yield all-false, never an error.
func (s *Store) GetStatus(userID, placeID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := s.users[userID]
	_, visited := kinds[ListVisited][placeID]
	_, wishlisted := kinds[ListWishlist][placeID]
	_, liked := kinds[ListLiked][placeID]
	return Status{Visited: visited, Wishlist: wishlisted, Liked: liked}
}

// PlaceIDs returns the ids in one of the user's lists, ascending for
// determinism.
func (s *Store) PlaceIDs(userID string, kind ListKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.users[userID][kind]
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListForUser returns the user's entries for one kind. Visited and liked
// order by recency descending; wishlist orders by priority descending, then
// recency descending. Ties break by place id.
func (s *Store) ListForUser(userID string, kind ListKind) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.users[userID][kind]
	result := make([]Entry, 0, len(entries))
	for placeID, meta := range entries {
		result = append(result, Entry{PlaceID: placeID, Kind: kind, Metadata: meta})
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if kind == ListWishlist && a.Metadata.Priority != b.Metadata.Priority {
			return a.Metadata.Priority > b.Metadata.Priority
		}
		if !a.Metadata.AddedAt.Equal(b.Metadata.AddedAt) {
			return a.Metadata.AddedAt.After(b.Metadata.AddedAt)
		}
		return a.PlaceID < b.PlaceID
	})
	return result
}

// Counts reports the number of entries per kind for one user.
func (s *Store) Counts(userID string) map[ListKind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[ListKind]int, 3)
	for kind, entries := range s.users[userID] {
		counts[kind] = len(entries)
	}
	return counts
}
