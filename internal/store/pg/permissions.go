package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gatekeep.org/internal/auth"
)

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) RoleDefaults(ctx context.Context, userID int64) (auth.PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select rt.name, p.action
		from users u
		join role_permissions rp on rp.role_id = u.role_id
		join permissions p on p.id = rp.permission_id
		join resource_types rt on rt.id = p.resource_type_id
		where u.id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(auth.PermissionSet)
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			return nil, err
		}
		resource = strings.ToLower(resource)
		set[resource] = append(set[resource], auth.Action(action))
	}
	return set, rows.Err()
}

func (s *permissionStore) Overrides(ctx context.Context, userID int64) ([]auth.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		select rt.name, p.action, up.granted, coalesce(up.granted_by, 0)
		from user_permissions up
		join permissions p on p.id = up.permission_id
		join resource_types rt on rt.id = p.resource_type_id
		where up.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []auth.Override
	for rows.Next() {
		var o auth.Override
		if err := rows.Scan(&o.ResourceType, &o.Action, &o.Granted, &o.GrantedBy); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// SetOverride upserts on the (user_id, permission_id) uniqueness constraint,
// so conflicting duplicate overrides cannot exist. Callers resolve the
// permission id through FindByName first.
func (s *permissionStore) SetOverride(ctx context.Context, userID, permissionID int64, granted bool, grantedBy int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_permissions (user_id, permission_id, granted, granted_by)
		values ($1, $2, $3, nullif($4, 0))
		on conflict (user_id, permission_id) do update
		set granted = excluded.granted, granted_by = excluded.granted_by
	`, userID, permissionID, granted, grantedBy)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		select p.id, p.name, coalesce(p.description,''), rt.name, p.action
		from permissions p
		join resource_types rt on rt.id = p.resource_type_id
		where p.name = $1
	`, name)
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ResourceType, &p.Action)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
