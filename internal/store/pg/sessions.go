package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/ids"
)

type sessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sessionStore) Create(ctx context.Context, userID int64, expiresAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		insert into user_sessions (id, user_id, expires_at) values ($1, $2, $3)
	`, id, userID, expiresAt.UTC())
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *sessionStore) GetActive(ctx context.Context, id uuid.UUID) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, expires_at, is_revoked, created_at
		from user_sessions
		where id = $1 and not is_revoked and expires_at > $2
	`, id, s.now().UTC())
	var session auth.Session
	err := row.Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.Revoked, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *sessionStore) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update user_sessions set is_revoked = true where id = $1 and not is_revoked
	`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type refreshTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *refreshTokenStore) Create(ctx context.Context, sessionID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, session_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
	`, ids.New(), sessionID, tokenHash, expiresAt.UTC())
	return err
}

// GetActiveForRotation validates token and owning session in one query so a
// revoked session can never yield a usable refresh token, and resolves the
// owner in the same round trip.
func (s *refreshTokenStore) GetActiveForRotation(ctx context.Context, tokenHash string) (*auth.RotationGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		select t.token_hash, s.id, u.id, r.name
		from refresh_tokens t
		join user_sessions s on s.id = t.session_id
		join users u on u.id = s.user_id
		join user_roles r on r.id = u.role_id
		where t.token_hash = $1
		  and not t.is_revoked and t.expires_at > $2
		  and not s.is_revoked and s.expires_at > $2
	`, tokenHash, s.now().UTC())
	var grant auth.RotationGrant
	err := row.Scan(&grant.TokenHash, &grant.SessionID, &grant.UserID, &grant.RoleName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// Rotate inserts the replacement and revokes the consumed token in one
// transaction. The revoking update re-checks revocation and expiry, so of
// two concurrent rotations of the same token only one commits; the other
// rolls back wholesale and reports ErrTokenNotFound.
func (s *refreshTokenStore) Rotate(ctx context.Context, consumedHash string, sessionID uuid.UUID, newHash string, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, session_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
	`, ids.New(), sessionID, newHash, expiresAt.UTC()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true
		where token_hash = $1 and not is_revoked and expires_at > $2
	`, consumedHash, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrTokenNotFound
	}
	return tx.Commit()
}

func (s *refreshTokenStore) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true
		where token_hash = $1 and not is_revoked and expires_at > $2
	`, tokenHash, s.now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
