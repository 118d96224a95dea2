package types

import (
	"strings"
	"time"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, team membership, credentials, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id" bson:"_id"`

	// Email is the user's login address, stored trimmed and lowercased.
	Email string `json:"email" db:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses and is only
	// loaded by explicit credential lookups.
	PasswordHash string `json:"-" db:"password_hash" bson:"password_hash,omitempty"`

	// Name is the user's display name.
	Name string `json:"name" db:"name" bson:"name"`

	// Team is the free-form team label the user belongs to.
	Team string `json:"team" db:"team" bson:"team"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role" bson:"role"`

	// RefreshToken is the most recently issued refresh token.
	// Empty means none has been issued.
	RefreshToken string `json:"-" db:"refresh_token" bson:"refresh_token,omitempty"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
