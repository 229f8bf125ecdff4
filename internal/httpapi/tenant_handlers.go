package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"schoolcore.org/internal/audit"
	"schoolcore.org/internal/auth"
)

type createTenantRequest struct {
	Name string `json:"name"`
}

type updateTenantRequest struct {
	Active *bool `json:"active"`
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := auth.RequireSuperAdmin(principal); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	if a.tenants == nil {
		writeError(w, r, http.StatusServiceUnavailable, "tenant store unavailable")
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := a.tenants.ListTenants(r.Context())
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		if list == nil {
			list = []*auth.Tenant{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": list})
	case http.MethodPost:
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tenant, err := a.tenants.CreateTenant(r.Context(), req.Name)
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "tenants.create", map[string]any{
			"tenant_id": tenant.ID,
			"name":      tenant.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tenant.ID))
		writeJSON(w, http.StatusCreated, tenant)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTenantByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := auth.RequireSuperAdmin(principal); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	if a.tenants == nil {
		writeError(w, r, http.StatusServiceUnavailable, "tenant store unavailable")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		tenant, err := a.tenants.FindTenant(r.Context(), id)
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tenant)
	case http.MethodPatch:
		var req updateTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Active == nil {
			writeError(w, r, http.StatusBadRequest, "active flag is required")
			return
		}
		tenant, err := a.tenants.SetTenantActive(r.Context(), id, *req.Active)
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "tenants.set_active", map[string]any{
			"tenant_id": tenant.ID,
			"active":    tenant.Active,
		})
		writeJSON(w, http.StatusOK, tenant)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func handleTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "tenant already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
