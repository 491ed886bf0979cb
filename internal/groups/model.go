package groups

// Role names a member's standing within a group.
type Role string

const (
	// RoleAdmin can manage members and delete the group.
	RoleAdmin Role = "admin"
	// RoleMember participates in the shared view without management rights.
	RoleMember Role = "member"
)

// Group is the persisted group header.
type Group struct {
	GroupID          string `gorm:"column:group_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null;index:idx_groups_creator"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "groups"
}

// Membership is one user's row in a group.
type Membership struct {
	GroupID        string `gorm:"column:group_id;primaryKey;size:190;not null"`
	UserID         string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_group_members_user"`
	Role           string `gorm:"column:role;size:16;not null;default:'member'"`
	AddedAtSeconds int64  `gorm:"column:added_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "group_members"
}
