package lists

// MembershipRecord is the persisted form of one list membership. The in-memory
// store stays authoritative at runtime; rows exist so memberships survive a
// restart.
type MembershipRecord struct {
	UserID         string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_memberships_user,priority:1"`
	PlaceID        string `gorm:"column:place_id;primaryKey;size:190;not null;index:idx_memberships_place"`
	Kind           string `gorm:"column:kind;primaryKey;size:16;not null;index:idx_memberships_user,priority:2"`
	Note           string `gorm:"column:note;type:text;not null;default:''"`
	Priority       int    `gorm:"column:priority;not null;default:0"`
	Rating         int    `gorm:"column:rating;not null;default:0"`
	AddedAtSeconds int64  `gorm:"column:added_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MembershipRecord) TableName() string {
	return "list_memberships"
}
