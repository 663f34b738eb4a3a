package models

import "time"

// Role values for User.Role.
const (
	RoleEngineer = "engineer"
	RoleAdmin    = "admin"
)

// User is an authenticated identity. Users are provisioned externally;
// the core only references them as command owners and audit actors.
type User struct {
	UserID    string    `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Username  string    `gorm:"column:username;uniqueIndex" json:"username"`
	Role      string    `gorm:"column:role" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName implements gorm's Tabler.
func (User) TableName() string { return "users" }
