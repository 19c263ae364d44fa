// Package models defines the row types shared across Washdesk.
package models

import "time"

// User roles. Staff is the union of superadmin, admin and employee.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleEmployee   = "employee"
	RoleClient     = "client"
)

// User represents an account in the back office.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsStaff reports whether the user holds a staff role.
func (u *User) IsStaff() bool {
	switch u.Role {
	case RoleSuperadmin, RoleAdmin, RoleEmployee:
		return true
	}
	return false
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperadmin, RoleAdmin, RoleEmployee, RoleClient:
		return true
	}
	return false
}
