// Package records holds the tenant-scoped data-access contract. Every
// tenant-owned entity goes through a Gateway that stamps the tenant id on
// creation and filters by it on every read and write; cross-tenant access is
// indistinguishable from a missing record.
package records

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("records: not found")
	ErrInvalidInput = errors.New("records: invalid input")

	// ErrTenantUnavailable rejects writes into tenants that do not exist or
	// have been deactivated.
	ErrTenantUnavailable = errors.New("records: tenant unknown or deactivated")

	// ErrTenantRequired rejects any gateway operation attempted without an
	// established tenant scope. This is a hard failure, never a default.
	ErrTenantRequired = errors.New("records: tenant scope required")
)

// Student is the representative tenant-owned entity. TenantID is set at
// creation and never mutated.
type Student struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentPatch carries partial updates. Tenant id and primary id are absent
// by construction; a patch can never move a record between tenants.
type StudentPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Status    *string
}

// ListFilter narrows tenant-scoped listings.
type ListFilter struct {
	Status string
	Limit  int
}

// Gateway is the persistence contract for students. Implementations must
// treat tenantID as a mandatory predicate on every operation.
type Gateway interface {
	InsertStudent(ctx context.Context, s *Student) error
	FindStudent(ctx context.Context, tenantID, id string) (*Student, error)
	ListStudents(ctx context.Context, tenantID string, filter ListFilter) ([]*Student, error)
	UpdateStudent(ctx context.Context, tenantID, id string, patch StudentPatch) (*Student, error)
	DeleteStudent(ctx context.Context, tenantID, id string) error
}
