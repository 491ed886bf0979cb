package places

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var csvHeader = []string{
	"place_id", "source_id", "name", "city", "state", "country", "category", "lat", "lon",
}

// ExportCSV streams the catalog as CSV, ascending by place id.
func (s *Service) ExportCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, place := range s.snapshot() {
		row := []string{
			place.PlaceID,
			place.SourceID,
			place.Name,
			place.City,
			place.State,
			place.Country,
			place.Category,
			strconv.FormatFloat(place.Lat, 'f', -1, 64),
			strconv.FormatFloat(place.Lon, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportGeoJSON renders the catalog as a GeoJSON feature collection with one
// point feature per place.
func (s *Service) ExportGeoJSON() ([]byte, error) {
	collection := geojson.NewFeatureCollection()
	for _, place := range s.snapshot() {
		feature := geojson.NewFeature(orb.Point{place.Lon, place.Lat})
		feature.ID = place.PlaceID
		feature.Properties = geojson.Properties{
			"place_id":  place.PlaceID,
			"source_id": place.SourceID,
			"name":      place.Name,
			"city":      place.City,
			"state":     place.State,
			"country":   place.Country,
			"category":  place.Category,
		}
		collection.Append(feature)
	}
	return collection.MarshalJSON()
}
