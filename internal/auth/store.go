package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store describes persistence operations required by the auth subsystem.
// Implementations must make each mutation atomic; the Postgres store wraps
// multi-step writes in a transaction.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Sessions(ctx context.Context) SessionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages identity records.
type UserStore interface {
	// Create persists an inactive user and fills in the generated id.
	// A duplicate email yields ErrAlreadyExists.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Activate flips the active flag on; an already-active user yields ErrConflict.
	Activate(ctx context.Context, id int64) error
	// Deactivate soft-deletes the user. Hard deletes do not exist.
	Deactivate(ctx context.Context, id int64) error
	UpdateName(ctx context.Context, id int64, name string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// RoleStore manages role lookups. Roles travel by name; user projections
// carry the role name already, so there is no lookup by id.
type RoleStore interface {
	FindByName(ctx context.Context, name string) (*Role, error)
}

// SessionStore manages server-side session records.
type SessionStore interface {
	// Create persists a new session and returns its generated UUID.
	Create(ctx context.Context, userID int64, expiresAt time.Time) (uuid.UUID, error)
	// GetActive returns the session only while it is neither revoked nor
	// expired; otherwise ErrSessionNotFound.
	GetActive(ctx context.Context, id uuid.UUID) (*Session, error)
	// Revoke idempotently flips the session to revoked and reports whether a
	// row actually changed. Revoking a missing or already-revoked session is
	// not an error.
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
}

// RefreshTokenStore manages the rotation lifecycle of opaque refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, sessionID uuid.UUID, tokenHash string, expiresAt time.Time) error
	// GetActiveForRotation is the conjunctive gate: the token must exist,
	// be unrevoked and unexpired, AND its owning session must be unrevoked
	// and unexpired. Any single failing condition yields ErrTokenNotFound.
	// The owning user id and role name are resolved in the same query.
	GetActiveForRotation(ctx context.Context, tokenHash string) (*RotationGrant, error)
	// Rotate persists the replacement token and revokes the consumed one in
	// a single atomic unit. When the consumed token was already revoked or
	// expired (a lost race), nothing is written and ErrTokenNotFound is
	// returned.
	Rotate(ctx context.Context, consumedHash string, sessionID uuid.UUID, newHash string, expiresAt time.Time) error
	// Revoke flips an active token to revoked; a mutation on a missing,
	// already-revoked or already-expired token is a no-op returning false.
	Revoke(ctx context.Context, tokenHash string) (bool, error)
}

// PermissionStore supplies the two inputs of permission resolution and
// manages per-user overrides.
type PermissionStore interface {
	// RoleDefaults returns the user's role permissions grouped by resource type.
	RoleDefaults(ctx context.Context, userID int64) (PermissionSet, error)
	// Overrides returns the user's per-permission exceptions.
	Overrides(ctx context.Context, userID int64) ([]Override, error)
	// SetOverride upserts the (user, permission) override row. An unknown
	// user or permission id yields ErrNotFound.
	SetOverride(ctx context.Context, userID, permissionID int64, granted bool, grantedBy int64) error
	// FindByName resolves a permission by its qualified name, ErrNotFound
	// when absent.
	FindByName(ctx context.Context, name string) (*Permission, error)
}
