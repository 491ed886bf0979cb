package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Mean Earth radius per IUGG, kilometers.
const earthRadiusKm = 6371.0088

// KmPerDegreeLat is the great-circle length of one degree of latitude
// (and of longitude at the equator).
const KmPerDegreeLat = math.Pi * earthRadiusKm / 180

var (
	// ErrInvalidCoordinate indicates a latitude outside [-90, 90] or a
	// longitude outside [-180, 180].
	ErrInvalidCoordinate = errors.New("geo: invalid coordinate")
	// ErrInvalidBoundingBox indicates a box whose south edge lies above its
	// north edge or whose west edge lies east of its east edge.
	ErrInvalidBoundingBox = errors.New("geo: invalid bounding box")
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// NewCoordinate validates raw degree input and returns a Coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if err := ValidateCoordinate(lat, lon); err != nil {
		return Coordinate{}, err
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// Point returns the orb representation (lon/lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// ValidateCoordinate checks degree ranges.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}

// GeodesicDistanceKm returns the great-circle distance between two points
// using the haversine formula. Symmetric; zero for identical points.
func GeodesicDistanceKm(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if err := ValidateCoordinate(lat1, lon1); err != nil {
		return 0, err
	}
	if err := ValidateCoordinate(lat2, lon2); err != nil {
		return 0, err
	}
	return haversineKm(lat1, lon1, lat2, lon2), nil
}

// haversineKm assumes already-validated input.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BoundingBox is an axis-aligned latitude/longitude rectangle.
type BoundingBox struct {
	North float64
	South float64
	East  float64
	West  float64
}

// NewBoundingBox validates the corner coordinates and edge ordering.
func NewBoundingBox(north, south, east, west float64) (BoundingBox, error) {
	if err := ValidateCoordinate(north, west); err != nil {
		return BoundingBox{}, err
	}
	if err := ValidateCoordinate(south, east); err != nil {
		return BoundingBox{}, err
	}
	if south > north {
		return BoundingBox{}, fmt.Errorf("%w: south %v above north %v", ErrInvalidBoundingBox, south, north)
	}
	if west > east {
		return BoundingBox{}, fmt.Errorf("%w: west %v beyond east %v", ErrInvalidBoundingBox, west, east)
	}
	return BoundingBox{North: north, South: south, East: east, West: west}, nil
}

// Bound returns the orb representation of the box.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Contains reports whether the point lies inside the box, edges inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.Bound().Contains(orb.Point{lon, lat})
}

// BoundingBoxContains is the standalone containment test; it rejects a
// malformed box instead of silently returning false.
func BoundingBoxContains(north, south, east, west, lat, lon float64) (bool, error) {
	box, err := NewBoundingBox(north, south, east, west)
	if err != nil {
		return false, err
	}
	if err := ValidateCoordinate(lat, lon); err != nil {
		return false, err
	}
	return box.Contains(lat, lon), nil
}
