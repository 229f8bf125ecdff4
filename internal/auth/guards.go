package auth

import (
	"fmt"
	"strings"
)

// HasRole reports role membership by name.
func (p Principal) HasRole(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the names.
func (p Principal) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if p.HasRole(name) {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the principal's roles carries the
// named permission.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// IsSuperAdmin reports whether the principal holds the platform-wide role.
func (p Principal) IsSuperAdmin() bool {
	return p.HasRole(RoleSuperAdmin)
}

// RequireRole fails with the missing role named; policy names are safe to
// disclose in 403 responses.
func RequireRole(p Principal, name string) error {
	if p.HasRole(name) {
		return nil
	}
	return fmt.Errorf("%w: missing role %q", ErrForbidden, name)
}

// RequireAnyRole passes when the principal holds any of the roles.
func RequireAnyRole(p Principal, names ...string) error {
	if p.HasAnyRole(names...) {
		return nil
	}
	return fmt.Errorf("%w: requires one of roles %s", ErrForbidden, strings.Join(names, ", "))
}

// RequirePermission fails with the missing permission named.
func RequirePermission(p Principal, name string) error {
	if p.HasPermission(name) {
		return nil
	}
	return fmt.Errorf("%w: missing permission %q", ErrForbidden, name)
}

// RequireSuperAdmin is the strict single-role check with no bypass.
func RequireSuperAdmin(p Principal) error {
	if p.IsSuperAdmin() {
		return nil
	}
	return fmt.Errorf("%w: requires role %q", ErrForbidden, RoleSuperAdmin)
}

// RequireAdminWithTenantScope passes super-admins for every tenant; everyone
// else must hold the admin role and act within their own tenant.
func RequireAdminWithTenantScope(p Principal, targetTenantID string) error {
	if p.IsSuperAdmin() {
		return nil
	}
	if err := RequireRole(p, RoleAdmin); err != nil {
		return err
	}
	if targetTenantID == "" || p.TenantID() == "" || p.TenantID() != targetTenantID {
		return fmt.Errorf("%w: tenant scope mismatch", ErrForbidden)
	}
	return nil
}
