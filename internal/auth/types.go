package auth

import "time"

// Reserved role names. Roles are global: the same name means the same thing
// in every tenant, but only super-admin transcends tenant boundaries.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

// Permission names used by the student-records surface.
const (
	PermStudentsRead  = "students.read"
	PermStudentsWrite = "students.write"
)

// Tenant is an isolated organizational unit owning all scoped records.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an authenticatable principal. TenantID is empty only for the
// bootstrap principal created before any tenant exists.
type User struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Login             string     `json:"login"`
	PasswordHash      string     `json:"-"`
	Active            bool       `json:"active"`
	FirstLogin        bool       `json:"first_login"`
	PasswordExpiresAt *time.Time `json:"password_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Role groups permissions under a globally unique name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a fine-grained capability attached to roles.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Principal is a user with resolved roles and permissions. The authorization
// core never needs more than this, regardless of whether the user is a
// student, teacher or staff specialization.
type Principal struct {
	User        *User
	Roles       []string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded roles and permissions.
func NewPrincipal(user *User, roles []Role, perms []Permission) Principal {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p.Name] = struct{}{}
	}
	return Principal{User: user, Roles: names, Permissions: set}
}

// TenantID returns the tenant the principal belongs to.
func (p Principal) TenantID() string {
	if p.User == nil {
		return ""
	}
	return p.User.TenantID
}
