package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// User represents a marketplace account (buyer, seller or admin)
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Auth0ID   string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Role      string         `gorm:"not null;default:'buyer'" json:"role"` // "buyer", "seller" or "admin"
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// PublicID is the user id as it appears in order records
func (u User) PublicID() string {
	if u.ID == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(u.ID), 10)
}

// IsAdmin reports whether the user may use the admin routes
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ValidRole reports whether role can be assigned to a user
func ValidRole(role string) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}
