package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent         UserRole = "STUDENT"
	RoleTeacher         UserRole = "TEACHER"
	RoleCurator         UserRole = "CURATOR"
	RoleProjectCurator  UserRole = "PROJECT_CURATOR"
	RoleProjectReviewer UserRole = "PROJECT_REVIEWER"
	RoleAlumni          UserRole = "ALUMNI"
)

// User represents an application user stored in the users table.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FullName       string     `db:"full_name" json:"full_name"`
	Active         bool       `db:"active" json:"active"`
	SiteID         string     `db:"site_id" json:"site_id"`
	TimeZone       string     `db:"time_zone" json:"time_zone"`
	EmailSuspended bool       `db:"email_suspended" json:"email_suspended"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	Roles          []UserRole `db:"-" json:"roles"`
}

// HasRole reports whether the user was granted role.
func (u *User) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Recipient is the minimal view of a user needed to deliver an email.
type Recipient struct {
	UserID         string `db:"user_id" json:"user_id"`
	Email          string `db:"email" json:"email"`
	FullName       string `db:"full_name" json:"full_name"`
	SiteID         string `db:"site_id" json:"site_id"`
	EmailSuspended bool   `db:"email_suspended" json:"email_suspended"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
