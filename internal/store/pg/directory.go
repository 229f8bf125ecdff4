package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/ids"
)

var _ auth.Directory = (*Store)(nil)

const userColumns = `id, coalesce(tenant_id, ''), login, password_hash, active, first_login, password_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Login, &u.PasswordHash, &u.Active,
		&u.FirstLogin, &u.PasswordExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUserInTenant(ctx context.Context, tenantID, userID string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and tenant_id = $2
	`, userID, tenantID)
	return scanUser(row)
}

func (s *Store) FindUserGlobal(ctx context.Context, userID string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, userID)
	return scanUser(row)
}

func (s *Store) FindUserByLogin(ctx context.Context, tenantID, login string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var row *sql.Row
	if tenantID == "" {
		row = s.db.QueryRowContext(ctx, `
			select `+userColumns+`
			from users
			where lower(login) = lower($1)
		`, login)
	} else {
		row = s.db.QueryRowContext(ctx, `
			select `+userColumns+`
			from users
			where lower(login) = lower($1) and tenant_id = $2
		`, login, tenantID)
	}
	return scanUser(row)
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description, ''), r.created_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, coalesce(p.description, ''), p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		join user_roles ur on ur.role_id = rp.role_id
		where ur.user_id = $1
		order by p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreateTenant(ctx context.Context, name string) (*auth.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", auth.ErrInvalidInput)
	}
	var t auth.Tenant
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (id, name, active)
		values ($1, $2, true)
		returning id, name, active, created_at, updated_at
	`, ids.New(), name)
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) FindTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var t auth.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, name, active, created_at, updated_at
		from tenants
		where id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]*auth.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, active, created_at, updated_at
		from tenants
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Tenant
	for rows.Next() {
		var t auth.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

func (s *Store) SetTenantActive(ctx context.Context, id string, active bool) (*auth.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var t auth.Tenant
	err := s.db.QueryRowContext(ctx, `
		update tenants
		set active = $2, updated_at = now()
		where id = $1
		returning id, name, active, created_at, updated_at
	`, id, active).Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateUser inserts a user. An empty tenantID stores NULL so the unique
// login index per tenant does not collide with bootstrap principals.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var tenant sql.NullString
	if u.TenantID != "" {
		tenant = sql.NullString{String: u.TenantID, Valid: true}
	}
	id := u.ID
	if id == "" {
		id = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, tenant_id, login, password_hash, active, first_login, password_expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+userColumns+`
	`, id, tenant, u.Login, u.PasswordHash, u.Active, u.FirstLogin, u.PasswordExpiresAt)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return nil, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return nil, auth.ErrNotFound
			}
		}
		return nil, err
	}
	return created, nil
}

// EnsureRole creates the role if missing and returns it either way.
func (s *Store) EnsureRole(ctx context.Context, name, description string) (*auth.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var r auth.Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		on conflict (name) do update set description = excluded.description
		returning id, name, coalesce(description, ''), created_at
	`, ids.New(), name, description).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// EnsurePermission creates the permission if missing and returns it.
func (s *Store) EnsurePermission(ctx context.Context, name, description string) (*auth.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description)
		values ($1, $2, $3)
		on conflict (name) do update set description = excluded.description
		returning id, name, coalesce(description, ''), created_at
	`, ids.New(), name, description).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}
