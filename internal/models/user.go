package models

import "time"

// UserRole represents the roles recognised by route guards.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleCollector UserRole = "COLLECTOR"
)

// Valid reports whether the role is one the engine knows about.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleCollector
}

// StaffUser is an administrator or fee collector stored in staff_users.
type StaffUser struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
