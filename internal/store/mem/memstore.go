// Package mem provides an in-memory auth.Store used by tests and demo mode.
// It follows the same contracts as the PostgreSQL store, including the
// conjunctive rotation gate and idempotent revocation semantics.
package mem

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/ids"
)

// Store keeps every record behind one mutex; good enough for tests and the
// demo mode, not meant for production traffic.
type Store struct {
	mu sync.Mutex

	now func() time.Time

	nextUserID int64
	users      map[int64]*auth.User
	roles      map[int64]*auth.Role
	rolePerms  map[int64][]int64 // role id -> permission ids
	perms      map[int64]*auth.Permission
	overrides  map[int64]map[int64]*auth.Override // user id -> permission id
	sessions   map[uuid.UUID]*auth.Session
	tokens     map[string]*auth.RefreshToken // keyed by token hash
}

var _ auth.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		nextUserID: 1,
		users:      make(map[int64]*auth.User),
		roles:      make(map[int64]*auth.Role),
		rolePerms:  make(map[int64][]int64),
		perms:      make(map[int64]*auth.Permission),
		overrides:  make(map[int64]map[int64]*auth.Override),
		sessions:   make(map[uuid.UUID]*auth.Session),
		tokens:     make(map[string]*auth.RefreshToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Users(context.Context) auth.UserStore                 { return (*userStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore                 { return (*roleStore)(s) }
func (s *Store) Sessions(context.Context) auth.SessionStore           { return (*sessionStore)(s) }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore { return (*refreshTokenStore)(s) }
func (s *Store) Permissions(context.Context) auth.PermissionStore     { return (*permissionStore)(s) }

// SeedRole registers a role and its default permissions, creating permission
// records as needed. Intended for test and demo setup.
func (s *Store) SeedRole(role auth.Role, defaults []auth.Permission) auth.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == 0 {
		role.ID = int64(len(s.roles) + 1)
	}
	r := role
	s.roles[role.ID] = &r
	for _, p := range defaults {
		id := s.seedPermissionLocked(p)
		s.rolePerms[role.ID] = append(s.rolePerms[role.ID], id)
	}
	return role
}

// SeedPermission registers a standalone permission (used for overrides that
// are not part of any role's defaults).
func (s *Store) SeedPermission(p auth.Permission) auth.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.seedPermissionLocked(p)
	return p
}

func (s *Store) seedPermissionLocked(p auth.Permission) int64 {
	for id, existing := range s.perms {
		if existing.Name == p.Name {
			return id
		}
	}
	id := int64(len(s.perms) + 1)
	p.ID = id
	cp := p
	s.perms[id] = &cp
	return id
}

// --- users -----------------------------------------------------------------

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrAlreadyExists
		}
	}
	role, ok := s.roles[u.RoleID]
	if !ok {
		return auth.ErrNotFound
	}
	u.ID = s.nextUserID
	s.nextUserID++
	u.Active = false
	u.RoleName = role.Name
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) Activate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if u.Active {
		return auth.ErrConflict
	}
	u.Active = true
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *userStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = false
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *userStore) UpdateName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *userStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now().UTC()
	return nil
}

// --- roles -----------------------------------------------------------------

type roleStore Store

func (s *roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// --- sessions --------------------------------------------------------------

type sessionStore Store

func (s *sessionStore) Create(_ context.Context, userID int64, expiresAt time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.sessions[id] = &auth.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
	return id, nil
}

func (s *sessionStore) GetActive(_ context.Context, id uuid.UUID) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Revoked || !session.ExpiresAt.After(s.now().UTC()) {
		return nil, auth.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *sessionStore) Revoke(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Revoked {
		return false, nil
	}
	session.Revoked = true
	return true, nil
}

// --- refresh tokens --------------------------------------------------------

type refreshTokenStore Store

func (s *refreshTokenStore) Create(_ context.Context, sessionID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createLocked(sessionID, tokenHash, expiresAt)
	return nil
}

func (s *refreshTokenStore) createLocked(sessionID uuid.UUID, tokenHash string, expiresAt time.Time) {
	s.tokens[tokenHash] = &auth.RefreshToken{
		ID:        ids.New(),
		SessionID: sessionID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
}

func (s *refreshTokenStore) GetActiveForRotation(_ context.Context, tokenHash string) (*auth.RotationGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.rotationGrantLocked(tokenHash)
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	return grant, nil
}

// rotationGrantLocked applies the conjunctive gate: token live AND owning
// session live.
func (s *refreshTokenStore) rotationGrantLocked(tokenHash string) (*auth.RotationGrant, bool) {
	now := s.now().UTC()
	token, ok := s.tokens[tokenHash]
	if !ok || token.Revoked || !token.ExpiresAt.After(now) {
		return nil, false
	}
	session, ok := s.sessions[token.SessionID]
	if !ok || session.Revoked || !session.ExpiresAt.After(now) {
		return nil, false
	}
	user, ok := s.users[session.UserID]
	if !ok {
		return nil, false
	}
	return &auth.RotationGrant{
		TokenHash: tokenHash,
		SessionID: session.ID,
		UserID:    user.ID,
		RoleName:  user.RoleName,
	}, true
}

func (s *refreshTokenStore) Rotate(_ context.Context, consumedHash string, sessionID uuid.UUID, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rotationGrantLocked(consumedHash); !ok {
		return auth.ErrTokenNotFound
	}
	s.createLocked(sessionID, newHash, expiresAt)
	s.tokens[consumedHash].Revoked = true
	return nil
}

func (s *refreshTokenStore) Revoke(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenHash]
	if !ok || token.Revoked || !token.ExpiresAt.After(s.now().UTC()) {
		return false, nil
	}
	token.Revoked = true
	return true, nil
}

// --- permissions -----------------------------------------------------------

type permissionStore Store

func (s *permissionStore) RoleDefaults(_ context.Context, userID int64) (auth.PermissionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(auth.PermissionSet)
	user, ok := s.users[userID]
	if !ok {
		return set, nil
	}
	for _, permID := range s.rolePerms[user.RoleID] {
		p := s.perms[permID]
		resource := strings.ToLower(p.ResourceType)
		set[resource] = append(set[resource], p.Action)
	}
	return set, nil
}

func (s *permissionStore) Overrides(_ context.Context, userID int64) ([]auth.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Override
	for _, o := range s.overrides[userID] {
		out = append(out, *o)
	}
	return out, nil
}

func (s *permissionStore) SetOverride(_ context.Context, userID, permissionID int64, granted bool, grantedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[permissionID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	if s.overrides[userID] == nil {
		s.overrides[userID] = make(map[int64]*auth.Override)
	}
	s.overrides[userID][perm.ID] = &auth.Override{
		ResourceType: perm.ResourceType,
		Action:       perm.Action,
		Granted:      granted,
		GrantedBy:    grantedBy,
	}
	return nil
}

func (s *permissionStore) FindByName(_ context.Context, name string) (*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}
