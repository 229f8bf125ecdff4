package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"schoolcore.org/internal/audit"
	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/records"
)

type studentPatchRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Status    *string `json:"status"`
}

// tenantScope picks the tenant the request acts on: the principal's own
// tenant, or for super-admins an explicit ?tenant_id= target.
func tenantScope(r *http.Request, p auth.Principal) (string, error) {
	if p.IsSuperAdmin() {
		if target := strings.TrimSpace(r.URL.Query().Get("tenant_id")); target != "" {
			return target, nil
		}
	}
	if tid := p.TenantID(); tid != "" {
		return tid, nil
	}
	return "", auth.ErrTenantRequired
}

// requireStudentWrite is the enforcement point for student mutations: the
// write permission plus admin standing in the target tenant. Super-admins
// pass for any tenant.
func requireStudentWrite(p auth.Principal, tenantID string) error {
	if err := auth.RequirePermission(p, auth.PermStudentsWrite); err != nil {
		return err
	}
	return auth.RequireAdminWithTenantScope(p, tenantID)
}

func (a *API) handleStudents(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	tenantID, err := tenantScope(r, principal)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "tenant scope is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := auth.RequirePermission(principal, auth.PermStudentsRead); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		filter := records.ListFilter{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
		}
		if limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 0, 1, 500); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		} else {
			filter.Limit = limit
		}
		list, err := a.students.ListStudents(r.Context(), tenantID, filter)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		if list == nil {
			list = []*records.Student{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"students": list})
	case http.MethodPost:
		if err := requireStudentWrite(principal, tenantID); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		var req records.NewStudent
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		st, err := a.students.CreateStudent(r.Context(), tenantID, req)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.student.create", map[string]any{
			"student_id": st.ID,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/students/%s", st.ID))
		writeJSON(w, http.StatusCreated, st)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleStudentByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/students/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	tenantID, err := tenantScope(r, principal)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "tenant scope is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := auth.RequirePermission(principal, auth.PermStudentsRead); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		st, err := a.students.GetStudent(r.Context(), tenantID, id)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPatch:
		if err := requireStudentWrite(principal, tenantID); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		var req studentPatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		st, err := a.students.UpdateStudent(r.Context(), tenantID, id, records.StudentPatch{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Status:    req.Status,
		})
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.student.update", map[string]any{
			"student_id": st.ID,
		})
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		if err := requireStudentWrite(principal, tenantID); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		if err := a.students.DeleteStudent(r.Context(), tenantID, id); err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.student.delete", map[string]any{
			"student_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- helpers shared by handlers ---

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRecordsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, records.ErrInvalidInput), errors.Is(err, records.ErrTenantRequired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, records.ErrTenantUnavailable):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, records.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
