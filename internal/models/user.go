package models

import "time"

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleHR       UserRole = "hr"
	UserRoleEmployee UserRole = "employee"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleHR, UserRoleEmployee:
		return true
	}
	return false
}

// User is the identity record backing authentication. RefreshTokenHashes is
// only populated by the token-aware store reads and is ordered oldest first.
type User struct {
	ID                 string
	Email              string
	Username           string
	PasswordHash       []byte
	Role               UserRole
	IsActive           bool
	RefreshTokenHashes []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfileUpdate carries the editable identity fields. Nil means unchanged.
type ProfileUpdate struct {
	Email    *string
	Username *string
}
