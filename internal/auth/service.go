package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRefreshTTL = 24 * time.Hour

	// rememberMeRefreshTTL is a login-time-only choice; it is not re-applied
	// when tokens rotate.
	rememberMeRefreshTTL = 14 * 24 * time.Hour
)

// Service composes the token codec, session store and password hasher into
// the authentication protocol: login, refresh rotation and logout. It holds
// no state of its own beyond configuration.
type Service struct {
	store      Store
	codec      *Codec
	now        func() time.Time
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRefreshTokenTTL configures the default refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth orchestrator.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("auth: store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("auth: token codec is required")
	}
	s := &Service{
		store:      store,
		codec:      codec,
		now:        time.Now,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates credentials and issues a fresh token pair. Unknown
// email, disabled account and wrong password all collapse into
// ErrAuthentication so callers cannot probe which check failed.
func (s *Service) Login(ctx context.Context, email, password, fingerprint string, rememberMe bool) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, ErrAuthentication
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, ErrAuthentication
	}
	if !user.Active {
		return TokenPair{}, ErrAuthentication
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrAuthentication
	}

	ttl := s.refreshTTL
	if rememberMe {
		ttl = rememberMeRefreshTTL
	}
	now := s.now().UTC()
	sessionID, err := s.store.Sessions(ctx).Create(ctx, user.ID, now.Add(ttl))
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, accessExp, err := s.codec.AccessToken(user.ID, user.RoleName, sessionID, fingerprint)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := now.Add(ttl)
	if err := s.store.RefreshTokens(ctx).Create(ctx, sessionID, HashRefreshToken(refreshToken), refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a refresh token for a new pair bound to the same
// session. The presented token passes the conjunctive gate (token and owning
// session both live), then is revoked as the replacement is persisted; the
// two writes commit atomically, so a concurrent refresh of the same token
// leaves exactly one winner and the loser observes ErrTokenNotFound.
// Session expiry is untouched; the new refresh token gets the default TTL.
func (s *Service) Refresh(ctx context.Context, refreshToken, fingerprint string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrTokenNotFound
	}
	consumedHash := HashRefreshToken(refreshToken)
	grant, err := s.store.RefreshTokens(ctx).GetActiveForRotation(ctx, consumedHash)
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, accessExp, err := s.codec.AccessToken(grant.UserID, grant.RoleName, grant.SessionID, fingerprint)
	if err != nil {
		return TokenPair{}, err
	}
	next, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := s.now().UTC().Add(s.refreshTTL)
	if err := s.store.RefreshTokens(ctx).Rotate(ctx, consumedHash, grant.SessionID, HashRefreshToken(next), refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     next,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Logout revokes the session. Revoking an already-revoked or missing session
// is not an error.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.store.Sessions(ctx).Revoke(ctx, sessionID)
	return err
}

// Authenticate validates an access token and checks session liveness. The
// HTTP layer maps every failure mode here to a single unauthorized outcome.
func (s *Service) Authenticate(ctx context.Context, token, fingerprint string) (Principal, error) {
	claims, err := s.codec.VerifyAccessToken(token, fingerprint)
	if err != nil {
		return Principal{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return Principal{}, err
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	session, err := s.store.Sessions(ctx).GetActive(ctx, sessionID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:    userID,
		SessionID: session.ID,
		Role:      claims.Role,
	}, nil
}

// PermissionsFor resolves the user's effective permission set: role defaults
// overlaid with individual grants and revocations. Nothing is cached; every
// check re-reads the store so a concurrent revocation takes effect
// immediately.
func (s *Service) PermissionsFor(ctx context.Context, userID int64) (PermissionSet, error) {
	perms := s.store.Permissions(ctx)
	defaults, err := perms.RoleDefaults(ctx, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := perms.Overrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ResolvePermissions(defaults, overrides), nil
}

// OverridesFor lists the raw per-user grants and revocations, before they
// are folded into the effective set.
func (s *Service) OverridesFor(ctx context.Context, userID int64) ([]Override, error) {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Permissions(ctx).Overrides(ctx, userID)
}

// Require ensures the user holds the capability, naming the missing
// resource:action pair on denial. Unlike authentication failures this detail
// is safe to reveal.
func (s *Service) Require(ctx context.Context, userID int64, resourceType string, action Action) error {
	set, err := s.PermissionsFor(ctx, userID)
	if err != nil {
		return err
	}
	if !set.Has(resourceType, action) {
		return fmt.Errorf("%w: requires %s:%s", ErrPermissionDenied, strings.ToLower(resourceType), action)
	}
	return nil
}

// CurrentUser loads the full user and role projection for the principal.
func (s *Service) CurrentUser(ctx context.Context, principal Principal) (*User, error) {
	return s.store.Users(ctx).Find(ctx, principal.UserID)
}
