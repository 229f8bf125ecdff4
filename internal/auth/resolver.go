package auth

import (
	"context"
	"errors"
)

// Directory describes the persistence lookups the authorization core needs.
// Implemented by internal/store/pg.
type Directory interface {
	// FindUserInTenant looks a user up inside one tenant only.
	FindUserInTenant(ctx context.Context, tenantID, userID string) (*User, error)
	// FindUserGlobal looks a user up across all tenants. Reserved for the
	// super-admin fallback; never use it for regular resolution.
	FindUserGlobal(ctx context.Context, userID string) (*User, error)
	// FindUserByLogin resolves login credentials. An empty tenantID searches
	// globally, which is only reached from the pre-auth login flow.
	FindUserByLogin(ctx context.Context, tenantID, login string) (*User, error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
}

// Resolver turns verified claims into a principal with roles and permissions.
type Resolver struct {
	dir Directory
}

// NewResolver wires the resolver to its directory.
func NewResolver(dir Directory) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	return &Resolver{dir: dir}, nil
}

// Resolve loads the principal for verified claims. The primary lookup is
// scoped to the claims' tenant. Only when that fails is a global lookup
// attempted, and its result is accepted only for holders of the super-admin
// role: a super-admin's session tenant may legitimately differ from the
// tenant row the user belongs to. The two lookups stay sequenced as separate
// steps; collapsing them into one query would widen the bypass.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (Principal, error) {
	if claims == nil {
		return Principal{}, ErrInvalidToken
	}

	user, err := r.dir.FindUserInTenant(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Principal{}, err
		}
		user, err = r.dir.FindUserGlobal(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Principal{}, ErrInvalidToken
			}
			return Principal{}, err
		}
		roles, err := r.dir.RolesForUser(ctx, user.ID)
		if err != nil {
			return Principal{}, err
		}
		if !hasRoleName(roles, RoleSuperAdmin) {
			return Principal{}, ErrInvalidToken
		}
		return r.finish(ctx, user, roles)
	}

	roles, err := r.dir.RolesForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return r.finish(ctx, user, roles)
}

func (r *Resolver) finish(ctx context.Context, user *User, roles []Role) (Principal, error) {
	if !user.Active {
		return Principal{}, ErrInvalidToken
	}
	perms, err := r.dir.PermissionsForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, roles, perms), nil
}

func hasRoleName(roles []Role, name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
