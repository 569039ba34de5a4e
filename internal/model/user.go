package model

import (
	"fmt"
	"time"
)

// User is a volunteer or administrator account.
type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	PasswordHash    string     `json:"-"`
	Role            string     `json:"role"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin     = "admin"
	RoleVolunteer = "volunteer"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// HasActiveAccess reports whether the account may currently sign in.
// A nil expiry means the access never lapses.
func (u *User) HasActiveAccess(now time.Time) bool {
	if u == nil || !u.IsActive || u.DeletedAt != nil {
		return false
	}
	if u.AccessExpiresAt == nil {
		return true
	}
	return u.AccessExpiresAt.After(now)
}

// ValidRole checks a role against the known set.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleVolunteer
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:     2,
		RoleVolunteer: 1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
