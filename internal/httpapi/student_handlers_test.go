package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"schoolcore.org/internal/records"
)

func TestCreateStudentStampsTenant(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "director", "correct horse")

	rr := env.do(t, http.MethodPost, "/v1/students", pair.AccessToken, map[string]string{
		"first_name": "Aidar",
		"last_name":  "Bekov",
		"email":      "AIDAR@Example.kz",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc == "" {
		t.Fatal("expected Location header")
	}
	var st records.Student
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode student: %v", err)
	}
	if st.TenantID != "tenant-a" {
		t.Fatalf("expected tenant-a stamp, got %q", st.TenantID)
	}
	if st.Status != records.StatusEnrolled {
		t.Fatalf("expected enrolled status, got %q", st.Status)
	}
	if st.Email != "aidar@example.kz" {
		t.Fatalf("expected normalized email, got %q", st.Email)
	}
}

func TestCreateStudentValidation(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "director", "correct horse")

	rr := env.do(t, http.MethodPost, "/v1/students", pair.AccessToken, map[string]string{
		"first_name": "",
		"last_name":  "Bekov",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListStudentsIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudent(t, "tenant-a", "Aidar", "Bekov")
	env.seedStudent(t, "tenant-b", "Dana", "Serik")

	pair := env.login(t, "director", "correct horse")
	rr := env.do(t, http.MethodGet, "/v1/students", pair.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Students []records.Student `json:"students"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(resp.Students) != 1 || resp.Students[0].TenantID != "tenant-a" {
		t.Fatalf("expected only tenant-a students, got %+v", resp.Students)
	}
}

func TestListStudentsRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "director", "correct horse")

	rr := env.do(t, http.MethodGet, "/v1/students?limit=99999", pair.AccessToken, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPatchStudentCannotChangeIdentity(t *testing.T) {
	env := newTestEnv(t)
	st := env.seedStudent(t, "tenant-a", "Aidar", "Bekov")

	pair := env.login(t, "director", "correct horse")
	rr := env.do(t, http.MethodPatch, "/v1/students/"+st.ID, pair.AccessToken, map[string]string{
		"tenant_id": "tenant-b",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestPatchStudentUpdatesFields(t *testing.T) {
	env := newTestEnv(t)
	st := env.seedStudent(t, "tenant-a", "Aidar", "Bekov")

	pair := env.login(t, "director", "correct horse")
	rr := env.do(t, http.MethodPatch, "/v1/students/"+st.ID, pair.AccessToken, map[string]string{
		"last_name": "Bekova",
		"status":    records.StatusWithdrawn,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var got records.Student
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode student: %v", err)
	}
	if got.LastName != "Bekova" || got.Status != records.StatusWithdrawn {
		t.Fatalf("unexpected student: %+v", got)
	}
}

func TestDeleteStudent(t *testing.T) {
	env := newTestEnv(t)
	st := env.seedStudent(t, "tenant-a", "Aidar", "Bekov")

	pair := env.login(t, "director", "correct horse")
	if rr := env.do(t, http.MethodDelete, "/v1/students/"+st.ID, pair.AccessToken, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/v1/students/"+st.ID, pair.AccessToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestDeleteForeignStudentIsNotFoundAndHarmless(t *testing.T) {
	env := newTestEnv(t)
	foreign := env.seedStudent(t, "tenant-b", "Dana", "Serik")

	pair := env.login(t, "director", "correct horse")
	if rr := env.do(t, http.MethodDelete, "/v1/students/"+foreign.ID, pair.AccessToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	root := env.login(t, "root", "correct horse")
	rr := env.do(t, http.MethodGet, "/v1/students/"+foreign.ID+"?tenant_id=tenant-b", root.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner copy must survive, got %d", rr.Code)
	}
}

func TestTenantLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	root := env.login(t, "root", "correct horse")

	rr := env.do(t, http.MethodPost, "/v1/tenants", root.AccessToken, map[string]string{"name": "School C"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	var tenant struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &tenant); err != nil {
		t.Fatalf("decode tenant: %v", err)
	}

	rr = env.do(t, http.MethodPatch, "/v1/tenants/"+tenant.ID, root.AccessToken, map[string]bool{"active": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	// A deactivated tenant stops accepting new records.
	rr = env.do(t, http.MethodPost, "/v1/students?tenant_id="+tenant.ID, root.AccessToken, map[string]string{
		"first_name": "Aidar",
		"last_name":  "Bekov",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for inactive tenant, got %d (%s)", rr.Code, rr.Body.String())
	}
}
