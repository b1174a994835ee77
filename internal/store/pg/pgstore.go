package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gatekeep.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ auth.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source used in expiry predicates.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

// NewStore wraps an existing connection pool (used by tests with sqlmock).
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore { return &roleStore{db: s.db} }
func (s *Store) Sessions(context.Context) auth.SessionStore {
	return &sessionStore{db: s.db, now: s.now}
}
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return &refreshTokenStore{db: s.db, now: s.now}
}
func (s *Store) Permissions(context.Context) auth.PermissionStore {
	return &permissionStore{db: s.db}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
