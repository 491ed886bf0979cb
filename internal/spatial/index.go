package spatial

import (
	"math"
	"sort"
	"sync"

	"github.com/wanderlist/wanderlist-api/internal/geo"
)

// Grid cell edge in degrees. At mid latitudes a cell spans roughly 55 km,
// which keeps radius queries to a handful of candidate cells for the
// distances this service works with.
const cellSizeDeg = 0.5

const (
	rowCount = int(180 / cellSizeDeg)
	colCount = int(360 / cellSizeDeg)
)

// maxGeodesicKm is the largest possible great-circle distance (antipodes).
const maxGeodesicKm = 180 * geo.KmPerDegreeLat

type cellKey struct {
	row int
	col int
}

// Neighbor is a point returned by a proximity query.
type Neighbor struct {
	ID         string
	DistanceKm float64
}

// Index maps point identifiers to coordinates and answers radius, bounding
// box and k-nearest queries without scanning every point. All methods are
// safe for concurrent use; readers do not block each other.
type Index struct {
	mu     sync.RWMutex
	points map[string]geo.Coordinate
	cells  map[cellKey]map[string]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		points: make(map[string]geo.Coordinate),
		cells:  make(map[cellKey]map[string]struct{}),
	}
}

func cellFor(lat, lon float64) cellKey {
	row := int(math.Floor((lat + 90) / cellSizeDeg))
	if row >= rowCount {
		row = rowCount - 1
	}
	if row < 0 {
		row = 0
	}
	col := int(math.Floor((lon + 180) / cellSizeDeg))
	if col >= colCount {
		col = colCount - 1
	}
	if col < 0 {
		col = 0
	}
	return cellKey{row: row, col: col}
}

// Insert adds a point or relocates an existing one; the last write wins.
func (idx *Index) Insert(id string, lat, lon float64) error {
	if err := geo.ValidateCoordinate(lat, lon); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if previous, ok := idx.points[id]; ok {
		idx.removeFromCell(id, cellFor(previous.Lat, previous.Lon))
	}
	idx.points[id] = geo.Coordinate{Lat: lat, Lon: lon}
	key := cellFor(lat, lon)
	bucket, ok := idx.cells[key]
	if !ok {
		bucket = make(map[string]struct{})
		idx.cells[key] = bucket
	}
	bucket[id] = struct{}{}
	return nil
}

// Remove deletes a point. Removing an absent id is a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	point, ok := idx.points[id]
	if !ok {
		return
	}
	delete(idx.points, id)
	idx.removeFromCell(id, cellFor(point.Lat, point.Lon))
}

func (idx *Index) removeFromCell(id string, key cellKey) {
	bucket, ok := idx.cells[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx.cells, key)
	}
}

// Len reports the number of indexed points.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.points)
}

// QueryRadius returns every point within radiusKm of the center, ascending
// by distance with ties broken by id. The center must be a valid coordinate;
// a negative radius yields no results.
func (idx *Index) QueryRadius(lat, lon, radiusKm float64) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.queryRadiusLocked(lat, lon, radiusKm)
}

func (idx *Index) queryRadiusLocked(lat, lon, radiusKm float64) []Neighbor {
	if radiusKm < 0 {
		return nil
	}

	results := make([]Neighbor, 0)
	idx.forCandidates(lat, lon, radiusKm, func(id string, point geo.Coordinate) {
		d, err := geo.GeodesicDistanceKm(lat, lon, point.Lat, point.Lon)
		if err != nil {
			return
		}
		if d <= radiusKm {
			results = append(results, Neighbor{ID: id, DistanceKm: d})
		}
	})

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// forCandidates visits every point in the cells that could contain a point
// within radiusKm of the center. The degree window is a superset of the
// exact circle, so callers still apply the haversine test.
func (idx *Index) forCandidates(lat, lon, radiusKm float64, visit func(id string, point geo.Coordinate)) {
	latDelta := radiusKm / geo.KmPerDegreeLat

	minLat := math.Max(lat-latDelta, -90)
	maxLat := math.Min(lat+latDelta, 90)

	// Longitude degrees shrink toward the poles; size the window with the
	// smallest cosine the latitude band can reach.
	edgeLat := math.Min(math.Max(math.Abs(lat)+latDelta, 0), 90)
	cosEdge := math.Cos(edgeLat * math.Pi / 180)

	wholeBand := false
	lonDelta := 0.0
	if cosEdge < 1e-6 {
		wholeBand = true
	} else {
		lonDelta = radiusKm / (geo.KmPerDegreeLat * cosEdge)
		if lonDelta >= 180 {
			wholeBand = true
		}
	}

	minRow := cellFor(minLat, 0).row
	maxRow := cellFor(maxLat, 0).row

	visitCell := func(key cellKey) {
		for id := range idx.cells[key] {
			visit(id, idx.points[id])
		}
	}

	for row := minRow; row <= maxRow; row++ {
		if wholeBand {
			for col := 0; col < colCount; col++ {
				visitCell(cellKey{row: row, col: col})
			}
			continue
		}
		// Column span may wrap the antimeridian.
		startCol := int(math.Floor((lon - lonDelta + 180) / cellSizeDeg))
		endCol := int(math.Floor((lon + lonDelta + 180) / cellSizeDeg))
		if endCol-startCol+1 >= colCount {
			for col := 0; col < colCount; col++ {
				visitCell(cellKey{row: row, col: col})
			}
			continue
		}
		for c := startCol; c <= endCol; c++ {
			col := ((c % colCount) + colCount) % colCount
			visitCell(cellKey{row: row, col: col})
		}
	}
}

// QueryBBox returns the ids of all points inside the inclusive box in
// ascending id order.
func (idx *Index) QueryBBox(box geo.BoundingBox) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	minCell := cellFor(box.South, box.West)
	maxCell := cellFor(box.North, box.East)

	ids := make([]string, 0)
	for row := minCell.row; row <= maxCell.row; row++ {
		for col := minCell.col; col <= maxCell.col; col++ {
			for id := range idx.cells[cellKey{row: row, col: col}] {
				point := idx.points[id]
				if box.Contains(point.Lat, point.Lon) {
					ids = append(ids, id)
				}
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// QueryKNN returns the min(k, total) closest points to the center, ascending
// by distance with ties broken by id. It widens a radius query until enough
// candidates are covered, which keeps the result complete without a full
// scan in the common case.
func (idx *Index) QueryKNN(lat, lon float64, k int) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.points) == 0 {
		return nil
	}
	if k > len(idx.points) {
		k = len(idx.points)
	}

	radius := cellSizeDeg * geo.KmPerDegreeLat
	var results []Neighbor
	for {
		results = idx.queryRadiusLocked(lat, lon, radius)
		if len(results) >= k || radius >= maxGeodesicKm {
			break
		}
		radius *= 2
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}
