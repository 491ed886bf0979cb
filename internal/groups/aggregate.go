package groups

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wanderlist/wanderlist-api/internal/lists"
)

var (
	errMissingMemberships = errors.New("membership source is required")
	noOpLogger            = zap.NewNop()
)

// MembershipSource exposes the per-user list state the aggregator reads.
// *lists.Store satisfies it.
type MembershipSource interface {
	PlaceIDs(userID string, kind lists.ListKind) []string
	GetStatus(userID, placeID string) lists.Status
}

// CategoryLookup resolves a place id to its category. Places outside the
// catalog report ok=false and survive category-unfiltered aggregation only.
type CategoryLookup interface {
	Category(ctx context.Context, placeID string) (string, bool)
}

// Predicate is a filter over one place's member status matrix.
type Predicate interface {
	Evaluate(matrix map[string]lists.Status) bool
}

type memberHasPredicate struct {
	memberID string
	kind     lists.ListKind
}

func (p memberHasPredicate) Evaluate(matrix map[string]lists.Status) bool {
	status := matrix[p.memberID]
	switch p.kind {
	case lists.ListVisited:
		return status.Visited
	case lists.ListWishlist:
		return status.Wishlist
	case lists.ListLiked:
		return status.Liked
	default:
		return false
	}
}

// MemberHas matches places present in the named member's list.
func MemberHas(memberID string, kind lists.ListKind) Predicate {
	return memberHasPredicate{memberID: memberID, kind: kind}
}

type andPredicate struct{ children []Predicate }

func (p andPredicate) Evaluate(matrix map[string]lists.Status) bool {
	for _, child := range p.children {
		if !child.Evaluate(matrix) {
			return false
		}
	}
	return true
}

// And matches when every child matches. With no children it matches all.
func And(children ...Predicate) Predicate {
	return andPredicate{children: children}
}

type orPredicate struct{ children []Predicate }

func (p orPredicate) Evaluate(matrix map[string]lists.Status) bool {
	for _, child := range p.children {
		if child.Evaluate(matrix) {
			return true
		}
	}
	return false
}

// Or matches when at least one child matches.
func Or(children ...Predicate) Predicate {
	return orPredicate{children: children}
}

type notPredicate struct{ child Predicate }

func (p notPredicate) Evaluate(matrix map[string]lists.Status) bool {
	return !p.child.Evaluate(matrix)
}

// Not inverts a predicate.
func Not(child Predicate) Predicate {
	return notPredicate{child: child}
}

// AnyMemberHas matches places present in that list for at least one of the
// given members.
func AnyMemberHas(memberIDs []string, kind lists.ListKind) Predicate {
	children := make([]Predicate, 0, len(memberIDs))
	for _, id := range memberIDs {
		children = append(children, MemberHas(id, kind))
	}
	return Or(children...)
}

// AggregateOptions narrows the aggregated result.
type AggregateOptions struct {
	// Categories keeps only places whose category matches one entry,
	// case-insensitively. Empty means no category filter.
	Categories []string
	// Predicate keeps only places whose status matrix satisfies it.
	// Nil means no status filter.
	Predicate Predicate
}

// StatusCounts totals the flags across the member matrix for one place.
type StatusCounts struct {
	Visited  int `json:"visited"`
	Wishlist int `json:"in_wishlist"`
	Liked    int `json:"liked"`
}

// AggregatedPlace is one place of the group view: the union row plus the full
// per-member status matrix.
type AggregatedPlace struct {
	PlaceID  string                  `json:"place_id"`
	Statuses map[string]lists.Status `json:"member_status"`
	Counts   StatusCounts            `json:"counts"`
}

// AggregatorConfig wires the aggregation dependencies. Places may be nil when
// no category filtering is needed.
type AggregatorConfig struct {
	Memberships MembershipSource
	Places      CategoryLookup
	Logger      *zap.Logger
}

// Aggregator computes the shared place view of a member set: the union of
// every member's three lists, with per-member status recomputed from the live
// membership source at query time.
type Aggregator struct {
	memberships MembershipSource
	places      CategoryLookup
	logger      *zap.Logger
}

// NewAggregator validates the configuration and returns an aggregator.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Memberships == nil {
		return nil, errMissingMemberships
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Aggregator{
		memberships: cfg.Memberships,
		places:      cfg.Places,
		logger:      logger,
	}, nil
}

// GroupPlaces returns the aggregated view for the member set, ascending by
// place id. An empty member set yields an empty result; members with no list
// entries contribute nothing but still appear in every status matrix.
func (a *Aggregator) GroupPlaces(ctx context.Context, memberIDs []string, opts AggregateOptions) []AggregatedPlace {
	members := dedupe(memberIDs)
	if len(members) == 0 {
		return []AggregatedPlace{}
	}

	union := make(map[string]struct{})
	for _, memberID := range members {
		for _, kind := range []lists.ListKind{lists.ListVisited, lists.ListWishlist, lists.ListLiked} {
			for _, placeID := range a.memberships.PlaceIDs(memberID, kind) {
				union[placeID] = struct{}{}
			}
		}
	}

	categories := normalizeCategories(opts.Categories)

	placeIDs := make([]string, 0, len(union))
	for placeID := range union {
		placeIDs = append(placeIDs, placeID)
	}
	sort.Strings(placeIDs)

	result := make([]AggregatedPlace, 0, len(placeIDs))
	for _, placeID := range placeIDs {
		if len(categories) > 0 && !a.categoryMatches(ctx, placeID, categories) {
			continue
		}

		matrix := make(map[string]lists.Status, len(members))
		var counts StatusCounts
		for _, memberID := range members {
			status := a.memberships.GetStatus(memberID, placeID)
			matrix[memberID] = status
			if status.Visited {
				counts.Visited++
			}
			if status.Wishlist {
				counts.Wishlist++
			}
			if status.Liked {
				counts.Liked++
			}
		}

		if opts.Predicate != nil && !opts.Predicate.Evaluate(matrix) {
			continue
		}

		result = append(result, AggregatedPlace{
			PlaceID:  placeID,
			Statuses: matrix,
			Counts:   counts,
		})
	}
	return result
}

func (a *Aggregator) categoryMatches(ctx context.Context, placeID string, categories map[string]struct{}) bool {
	if a.places == nil {
		return false
	}
	category, ok := a.places.Category(ctx, placeID)
	if !ok {
		return false
	}
	_, ok = categories[strings.ToLower(category)]
	return ok
}

func normalizeCategories(raw []string) map[string]struct{} {
	normalized := make(map[string]struct{}, len(raw))
	for _, category := range raw {
		trimmed := strings.ToLower(strings.TrimSpace(category))
		if trimmed != "" {
			normalized[trimmed] = struct{}{}
		}
	}
	return normalized
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
