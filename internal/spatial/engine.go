package spatial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wanderlist/wanderlist-api/internal/geo"
)

const (
	// DefaultRadiusKm applies when a radius search does not specify one.
	DefaultRadiusKm = 10
	// MaxRadiusKm caps a radius search; larger values are clamped, not rejected.
	MaxRadiusKm = 1000
	// RadiusResultLimit truncates radius search output by distance.
	RadiusResultLimit = 2000
	// DefaultK applies when a nearest-neighbor search does not specify k.
	DefaultK = 10
	// MaxK caps k; larger values are clamped, not rejected.
	MaxK = 100
	// BBoxResultLimit truncates bounding-box output.
	BBoxResultLimit = 5000
	// MaxMatrixPoints bounds the quadratic distance-matrix computation.
	MaxMatrixPoints = 200
)

var (
	// ErrInvalidRadius indicates a negative radius where clamping does not apply.
	ErrInvalidRadius = errors.New("spatial: invalid radius")
	// ErrInvalidK indicates a non-positive k where clamping does not apply.
	ErrInvalidK = errors.New("spatial: invalid k")
	// ErrTooManyPoints indicates a distance-matrix input above MaxMatrixPoints.
	ErrTooManyPoints = errors.New("spatial: too many points")
	// ErrTooFewPoints indicates a distance-matrix input with fewer than two points.
	ErrTooFewPoints = errors.New("spatial: at least two points required")

	errMissingIndex  = errors.New("spatial: index is required")
	errMissingPlaces = errors.New("spatial: place lookup is required")
)

// PlaceAttributes carries the attribute subset the engine filters on.
type PlaceAttributes struct {
	Name     string
	City     string
	State    string
	Country  string
	Category string
}

// PlaceLookup resolves place attributes for filtering and enrichment. The
// second return reports whether the place exists; a dangling id is treated
// as filtered out, never as an error.
type PlaceLookup interface {
	GetPlace(ctx context.Context, id string) (PlaceAttributes, bool)
}

// Filters narrows spatial query results by place attributes.
type Filters struct {
	// Categories matches exactly against the place category; empty means any.
	Categories []string
	// Name is a case-insensitive substring match.
	Name string
	// State is a case-insensitive substring match.
	State string
}

func (f Filters) empty() bool {
	return len(f.Categories) == 0 && f.Name == "" && f.State == ""
}

// ParseCategories splits a comma-separated category parameter.
func ParseCategories(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	categories := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	return categories
}

// EngineConfig describes the dependencies of the query engine.
type EngineConfig struct {
	Index  *Index
	Places PlaceLookup
	Logger *zap.Logger
}

// Engine implements the application-level spatial query contracts on top of
// the index: validation, clamped defaults, attribute filters and result
// truncation. It never mutates the index.
type Engine struct {
	index  *Index
	places PlaceLookup
	logger *zap.Logger
}

// NewEngine validates dependencies and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Index == nil {
		return nil, errMissingIndex
	}
	if cfg.Places == nil {
		return nil, errMissingPlaces
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{index: cfg.Index, places: cfg.Places, logger: logger}, nil
}

// RadiusQuery describes a radius search. RadiusKm zero means DefaultRadiusKm;
// out-of-range radii are clamped into [0, MaxRadiusKm].
type RadiusQuery struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
	Filters  Filters
}

// Radius returns points within the (clamped) radius of the center, closest
// first, truncated to RadiusResultLimit after filtering.
func (e *Engine) Radius(ctx context.Context, query RadiusQuery) ([]Neighbor, error) {
	if err := geo.ValidateCoordinate(query.Lat, query.Lon); err != nil {
		return nil, err
	}
	radius := clampRadius(query.RadiusKm)

	neighbors := e.index.QueryRadius(query.Lat, query.Lon, radius)
	neighbors = e.applyFilters(ctx, neighbors, query.Filters)
	if len(neighbors) > RadiusResultLimit {
		e.logger.Warn("radius result truncated",
			zap.Int("matched", len(neighbors)),
			zap.Int("limit", RadiusResultLimit))
		neighbors = neighbors[:RadiusResultLimit]
	}
	return neighbors, nil
}

func clampRadius(radiusKm float64) float64 {
	if radiusKm == 0 {
		return DefaultRadiusKm
	}
	if radiusKm < 0 {
		return 0
	}
	if radiusKm > MaxRadiusKm {
		return MaxRadiusKm
	}
	return radiusKm
}

// KNNQuery describes a nearest-neighbor search. K zero means DefaultK;
// out-of-range values are clamped into [1, MaxK].
type KNNQuery struct {
	Lat     float64
	Lon     float64
	K       int
	Filters Filters
}

// KNN returns the k closest points passing the filters, closest first.
func (e *Engine) KNN(ctx context.Context, query KNNQuery) ([]Neighbor, error) {
	if err := geo.ValidateCoordinate(query.Lat, query.Lon); err != nil {
		return nil, err
	}
	k := clampK(query.K)

	if query.Filters.empty() {
		return e.index.QueryKNN(query.Lat, query.Lon, k), nil
	}

	// Filters can reject arbitrarily many of the nearest candidates, so
	// widen the candidate set until k survivors are found or the index is
	// exhausted. QueryKNN returns min(fetch, n), so a short result proves
	// the whole index was covered on that iteration; checking the result
	// rather than a pre-read size stays correct when writers shrink the
	// index mid-loop.
	fetch := k
	for {
		candidates := e.index.QueryKNN(query.Lat, query.Lon, fetch)
		filtered := e.applyFilters(ctx, candidates, query.Filters)
		if len(filtered) >= k {
			return filtered[:k], nil
		}
		if len(candidates) < fetch {
			return filtered, nil
		}
		fetch *= 2
	}
}

func clampK(k int) int {
	if k == 0 {
		return DefaultK
	}
	if k < 1 {
		return 1
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

// BBoxQuery describes a bounding-box search.
type BBoxQuery struct {
	North   float64
	South   float64
	East    float64
	West    float64
	Filters Filters
}

// BBox returns the ids of points inside the box in ascending id order,
// truncated to BBoxResultLimit after filtering. Unlike radius and k, a
// malformed box is rejected rather than repaired.
func (e *Engine) BBox(ctx context.Context, query BBoxQuery) ([]string, error) {
	if query.North <= query.South {
		return nil, fmt.Errorf("%w: north must exceed south", geo.ErrInvalidBoundingBox)
	}
	if query.East <= query.West {
		return nil, fmt.Errorf("%w: east must exceed west", geo.ErrInvalidBoundingBox)
	}
	box, err := geo.NewBoundingBox(query.North, query.South, query.East, query.West)
	if err != nil {
		return nil, err
	}

	ids := e.index.QueryBBox(box)
	if !query.Filters.empty() {
		kept := ids[:0]
		for _, id := range ids {
			if e.matches(ctx, id, query.Filters) {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	if len(ids) > BBoxResultLimit {
		e.logger.Warn("bbox result truncated",
			zap.Int("matched", len(ids)),
			zap.Int("limit", BBoxResultLimit))
		ids = ids[:BBoxResultLimit]
	}
	return ids, nil
}

// ParsePoints parses a semicolon-separated list of lat,lon pairs. A single
// malformed pair fails the whole input, naming the 1-based offending point.
func ParsePoints(raw string) ([]geo.Coordinate, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrTooFewPoints)
	}
	parts := strings.Split(trimmed, ";")
	coordinates := make([]geo.Coordinate, 0, len(parts))
	for i, part := range parts {
		fields := strings.Split(part, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: point %d", geo.ErrInvalidCoordinate, i+1)
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if latErr != nil || lonErr != nil {
			return nil, fmt.Errorf("%w: point %d", geo.ErrInvalidCoordinate, i+1)
		}
		if err := geo.ValidateCoordinate(lat, lon); err != nil {
			return nil, fmt.Errorf("%w: point %d", geo.ErrInvalidCoordinate, i+1)
		}
		coordinates = append(coordinates, geo.Coordinate{Lat: lat, Lon: lon})
	}
	return coordinates, nil
}

// MatrixRow holds one point's distances to every input point in input order,
// including the zero self-distance.
type MatrixRow struct {
	Point     geo.Coordinate
	Distances []float64
}

// DistanceMatrix computes pairwise geodesic distances for the given points.
// The whole request fails on the first invalid point; partial results are
// never returned.
func (e *Engine) DistanceMatrix(_ context.Context, points []geo.Coordinate) ([]MatrixRow, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	if len(points) > MaxMatrixPoints {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrTooManyPoints, len(points), MaxMatrixPoints)
	}
	for i, p := range points {
		if err := geo.ValidateCoordinate(p.Lat, p.Lon); err != nil {
			return nil, fmt.Errorf("%w: point %d", geo.ErrInvalidCoordinate, i+1)
		}
	}

	rows := make([]MatrixRow, len(points))
	for i, from := range points {
		distances := make([]float64, len(points))
		for j, to := range points {
			if i == j {
				continue
			}
			d, err := geo.GeodesicDistanceKm(from.Lat, from.Lon, to.Lat, to.Lon)
			if err != nil {
				return nil, err
			}
			distances[j] = d
		}
		rows[i] = MatrixRow{Point: from, Distances: distances}
	}
	return rows, nil
}

// DensityReport summarizes point density around a center.
type DensityReport struct {
	Center            geo.Coordinate
	RadiusKm          float64
	Count             int
	AreaKm2           float64
	DensityPer1000Km2 float64
}

// Density counts points within the radius and relates the count to the
// circle area. A zero radius yields a zero density, not an error.
func (e *Engine) Density(_ context.Context, lat, lon, radiusKm float64) (DensityReport, error) {
	if err := geo.ValidateCoordinate(lat, lon); err != nil {
		return DensityReport{}, err
	}
	if radiusKm < 0 {
		return DensityReport{}, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusKm)
	}

	count := len(e.index.QueryRadius(lat, lon, radiusKm))
	area := math.Pi * radiusKm * radiusKm
	density := 0.0
	if area > 0 {
		density = float64(count) / area * 1000
	}
	return DensityReport{
		Center:            geo.Coordinate{Lat: lat, Lon: lon},
		RadiusKm:          radiusKm,
		Count:             count,
		AreaKm2:           area,
		DensityPer1000Km2: density,
	}, nil
}

func (e *Engine) applyFilters(ctx context.Context, neighbors []Neighbor, filters Filters) []Neighbor {
	if filters.empty() {
		return neighbors
	}
	kept := neighbors[:0]
	for _, neighbor := range neighbors {
		if e.matches(ctx, neighbor.ID, filters) {
			kept = append(kept, neighbor)
		}
	}
	return kept
}

func (e *Engine) matches(ctx context.Context, id string, filters Filters) bool {
	attrs, ok := e.places.GetPlace(ctx, id)
	if !ok {
		return false
	}
	if len(filters.Categories) > 0 {
		found := false
		for _, category := range filters.Categories {
			if attrs.Category == category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.Name != "" && !strings.Contains(strings.ToLower(attrs.Name), strings.ToLower(filters.Name)) {
		return false
	}
	if filters.State != "" && !strings.Contains(strings.ToLower(attrs.State), strings.ToLower(filters.State)) {
		return false
	}
	return true
}
