package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekeep.org/internal/auth"
)

type userStore struct{ db *sql.DB }

const userColumns = `u.id, u.email, coalesce(u.name,''), u.password_hash, u.is_active, u.role_id, r.name, u.created_at, u.updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users (email, name, password_hash, is_active, role_id)
		values ($1, nullif($2,''), $3, false, $4)
		returning id, created_at, updated_at
	`, u.Email, u.Name, u.PasswordHash, u.RoleID)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	u.Active = false
	return nil
}

func (s *userStore) Find(ctx context.Context, id int64) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join user_roles r on r.id = u.role_id
		where u.id = $1
	`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join user_roles r on r.id = u.role_id
		where u.email = $1
	`, email)
	return scanUser(row)
}

func (s *userStore) Activate(ctx context.Context, id int64) error {
	user, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if user.Active {
		return auth.ErrConflict
	}
	_, err = s.db.ExecContext(ctx, `
		update users set is_active = true, updated_at = now() where id = $1
	`, id)
	return err
}

func (s *userStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active = false, updated_at = now() where id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) UpdateName(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set name = nullif($2,''), updated_at = now() where id = $1
	`, id, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Active, &u.RoleID, &u.RoleName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type roleStore struct{ db *sql.DB }

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description,'') from user_roles where name = $1
	`, name)
	return scanRole(row)
}

func scanRole(row *sql.Row) (*auth.Role, error) {
	var r auth.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
