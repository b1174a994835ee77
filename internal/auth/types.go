package auth

import (
	"time"

	"github.com/google/uuid"
)

// AdminRoleName marks the distinguished role whose users can never be deleted.
const AdminRoleName = "admin"

// User is an identity record. Accounts start inactive and are activated by
// email confirmation; deletion is modeled as flipping Active off.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"is_active"`
	RoleID       int64     `json:"-"`
	RoleName     string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named bundle of default permissions.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission is a (resource type, action) capability, addressable by name.
type Permission struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ResourceType string `json:"resource_type"`
	Action       Action `json:"action"`
}

// Session binds a user to a revocable, expiring authentication context.
// Revocation is terminal; expiry is computed from the wall clock, not stored
// as a state transition.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the persisted side of an opaque refresh credential. Only
// the SHA-256 hash of the client-held value is ever stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// RotationGrant is the result of the refresh rotation gate: the surviving
// token row together with the eagerly-resolved owner, so the caller can mint
// a replacement pair without a second round trip.
type RotationGrant struct {
	TokenHash string
	SessionID uuid.UUID
	UserID    int64
	RoleName  string
}

// Override is a per-user exception layered on top of role defaults.
// Granted=false removes an action the role would otherwise allow.
type Override struct {
	ResourceType string `json:"resource_type"`
	Action       Action `json:"action"`
	Granted      bool   `json:"granted"`
	GrantedBy    int64  `json:"granted_by,omitempty"`
}

// Principal is the authenticated identity attached to a request context.
type Principal struct {
	UserID    int64
	SessionID uuid.UUID
	Role      string
}

// TokenPair is what login and refresh hand back to the client. The refresh
// token plaintext appears here exactly once and is never persisted.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
