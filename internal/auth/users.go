package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultRoleName = "user"

// Registration is the outcome of a successful sign-up. The confirmation
// token travels to the user out of band; the account stays inactive until it
// comes back.
type Registration struct {
	UserID            int64
	Email             string
	ConfirmationToken string
}

// Notifier delivers the email-confirmation token to the user.
type Notifier interface {
	SendEmailConfirmation(ctx context.Context, email, token string, expiresAt time.Time) error
}

// UserService covers the account lifecycle around the authentication core:
// registration, email confirmation, profile updates, password changes and
// soft deletion.
type UserService struct {
	store    Store
	codec    *Codec
	notifier Notifier
}

// NewUserService constructs the account service. The notifier may be nil,
// in which case confirmation tokens are only returned to the caller.
func NewUserService(store Store, codec *Codec, notifier Notifier) (*UserService, error) {
	if store == nil {
		return nil, fmt.Errorf("auth: store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("auth: token codec is required")
	}
	return &UserService{store: store, codec: codec, notifier: notifier}, nil
}

// Register creates an inactive account and issues its confirmation token.
// Unknown role names are rejected up front; duplicate emails surface as
// ErrAlreadyExists from the store.
func (s *UserService) Register(ctx context.Context, email, password, name, roleName string) (Registration, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Registration{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if err := ValidatePasswordPolicy(password); err != nil {
		return Registration{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	roleName = strings.TrimSpace(strings.ToLower(roleName))
	if roleName == "" {
		roleName = defaultRoleName
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, roleName)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: role %q", ErrInvalidInput, roleName)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Registration{}, err
	}
	user := &User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		RoleID:       role.ID,
		RoleName:     role.Name,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return Registration{}, err
	}

	token, expiresAt, err := s.codec.EmailConfirmationToken(user.ID)
	if err != nil {
		return Registration{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.SendEmailConfirmation(ctx, email, token, expiresAt); err != nil {
			return Registration{}, fmt.Errorf("send confirmation: %w", err)
		}
	}
	return Registration{UserID: user.ID, Email: email, ConfirmationToken: token}, nil
}

// ConfirmEmail activates the account named by a confirmation token.
// Confirming twice yields ErrConflict.
func (s *UserService) ConfirmEmail(ctx context.Context, token string) error {
	userID, err := s.codec.VerifyEmailConfirmationToken(token)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).Activate(ctx, userID)
}

// UpdateProfile changes the display name.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, name string) error {
	return s.store.Users(ctx).UpdateName(ctx, userID, strings.TrimSpace(name))
}

// ChangePassword verifies the current password before rehashing the new one.
// The new password must satisfy the same policy as registration.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrAuthentication
	}
	if err := ValidatePasswordPolicy(next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// Delete soft-deletes the user and revokes the session that issued the
// request. Users holding the admin role can never be deleted, regardless of
// who asks.
func (s *UserService) Delete(ctx context.Context, userID int64, sessionID uuid.UUID) error {
	if err := s.deactivate(ctx, userID); err != nil {
		return err
	}
	if sessionID != uuid.Nil {
		if _, err := s.store.Sessions(ctx).Revoke(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// SetPermissionOverride upserts a per-user grant or revocation on top of the
// role defaults. grantedBy records the administrator who made the change.
func (s *UserService) SetPermissionOverride(ctx context.Context, userID int64, permissionName string, granted bool, grantedBy int64) error {
	permissionName = strings.TrimSpace(permissionName)
	if permissionName == "" {
		return fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	perm, err := s.store.Permissions(ctx).FindByName(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.store.Permissions(ctx).SetOverride(ctx, userID, perm.ID, granted, grantedBy)
}

func (s *UserService) deactivate(ctx context.Context, userID int64) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if strings.EqualFold(user.RoleName, AdminRoleName) {
		return fmt.Errorf("%w: admin deletion forbidden", ErrConflict)
	}
	return s.store.Users(ctx).Deactivate(ctx, userID)
}
