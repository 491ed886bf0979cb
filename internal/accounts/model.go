package accounts

// User is one registered account. PasswordHash holds a bcrypt digest; the
// plaintext never leaves the login path.
type User struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username         string `gorm:"column:username;size:190;not null;uniqueIndex:idx_users_username"`
	Email            string `gorm:"column:email;size:190;not null;default:''"`
	PasswordHash     string `gorm:"column:password_hash;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
