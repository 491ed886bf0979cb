package places

import "github.com/wanderlist/wanderlist-api/internal/spatial"

// Place is one catalog entry. PlaceID is the stable identifier used by the
// spatial index and the list stores; SourceID preserves the identifier of the
// dataset the place was imported from, or a manual marker for user entries.
type Place struct {
	PlaceID          string  `gorm:"column:place_id;primaryKey;size:190;not null"`
	SourceID         string  `gorm:"column:source_id;size:190;not null;uniqueIndex:idx_places_source"`
	Name             string  `gorm:"column:name;size:190;not null;index:idx_places_name"`
	City             string  `gorm:"column:city;size:190;not null;default:''"`
	State            string  `gorm:"column:state;size:190;not null;default:'';index:idx_places_state"`
	Country          string  `gorm:"column:country;size:190;not null;default:''"`
	Category         string  `gorm:"column:category;size:190;not null;default:''"`
	Lat              float64 `gorm:"column:lat;not null"`
	Lon              float64 `gorm:"column:lon;not null"`
	CreatedBy        string  `gorm:"column:created_by;size:190;not null;default:''"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Place) TableName() string {
	return "places"
}

// Attributes projects the filterable fields.
func (p Place) Attributes() spatial.PlaceAttributes {
	return spatial.PlaceAttributes{
		Name:     p.Name,
		City:     p.City,
		State:    p.State,
		Country:  p.Country,
		Category: p.Category,
	}
}
