package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/ids"
)

const (
	StatusEnrolled  = "enrolled"
	StatusWithdrawn = "withdrawn"
)

// TenantCatalog is the slice of tenant persistence the gateway needs to
// validate ownership targets.
type TenantCatalog interface {
	FindTenant(ctx context.Context, id string) (*auth.Tenant, error)
}

// Service enforces the tenant-ownership rules in front of the Gateway.
type Service struct {
	gateway Gateway
	tenants TenantCatalog
	now     func() time.Time
}

// NewService wires the record service.
func NewService(gateway Gateway, tenants TenantCatalog, now func() time.Time) (*Service, error) {
	if gateway == nil || tenants == nil {
		return nil, errors.New("records: gateway and tenant catalog are required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{gateway: gateway, tenants: tenants, now: now}, nil
}

// NewStudent is the creation payload. The tenant id comes from the caller's
// resolved scope, never from the payload.
type NewStudent struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// CreateStudent stamps the tenant id onto a new record. Unknown and
// deactivated tenants are rejected before anything is written.
func (s *Service) CreateStudent(ctx context.Context, tenantID string, in NewStudent) (*Student, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}

	tenant, err := s.tenants.FindTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, ErrTenantUnavailable
		}
		return nil, err
	}
	if !tenant.Active {
		return nil, ErrTenantUnavailable
	}

	now := s.now().UTC()
	student := &Student{
		ID:        ids.New(),
		TenantID:  tenantID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     strings.TrimSpace(strings.ToLower(in.Email)),
		Status:    StatusEnrolled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.gateway.InsertStudent(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

// GetStudent reads within the caller's tenant only.
func (s *Service) GetStudent(ctx context.Context, tenantID, id string) (*Student, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.gateway.FindStudent(ctx, tenantID, id)
}

// ListStudents lists within the caller's tenant only.
func (s *Service) ListStudents(ctx context.Context, tenantID string, filter ListFilter) ([]*Student, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.gateway.ListStudents(ctx, tenantID, filter)
}

// UpdateStudent mutates a record after the gateway re-verifies its tenant.
// The patch cannot carry a tenant or primary id, so neither can change.
func (s *Service) UpdateStudent(ctx context.Context, tenantID, id string, patch StudentPatch) (*Student, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*patch.Status))
		if status != StatusEnrolled && status != StatusWithdrawn {
			return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
		}
		patch.Status = &status
	}
	if patch.FirstName != nil && strings.TrimSpace(*patch.FirstName) == "" {
		return nil, fmt.Errorf("%w: first name must not be empty", ErrInvalidInput)
	}
	if patch.LastName != nil && strings.TrimSpace(*patch.LastName) == "" {
		return nil, fmt.Errorf("%w: last name must not be empty", ErrInvalidInput)
	}
	return s.gateway.UpdateStudent(ctx, tenantID, id, patch)
}

// DeleteStudent removes a record after the same ownership check.
func (s *Service) DeleteStudent(ctx context.Context, tenantID, id string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.gateway.DeleteStudent(ctx, tenantID, id)
}
