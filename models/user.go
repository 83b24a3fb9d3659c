package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the capability a session acts with. It is read from the stored
// profile, never from a request body or the route being served.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Opposite returns the other party in a customer/admin conversation
func (r Role) Opposite() Role {
	if r == RoleAdmin {
		return RoleCustomer
	}
	return RoleAdmin
}

// User represents a storefront account (customer or support admin)
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Auth0ID   string         `gorm:"uniqueIndex;not null" json:"auth0Id"` // Auth0 user ID (from 'sub' claim)
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Role      Role           `gorm:"type:varchar(16);not null;default:'customer'" json:"role"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user acts with the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
