package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/records"
	"schoolcore.org/internal/session"
)

// fakeDirectory is an in-memory auth.Directory plus the TenantAdmin and
// records.TenantCatalog surfaces, enough to run the full handler stack.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]*auth.User
	roles   map[string][]auth.Role
	perms   map[string][]auth.Permission
	tenants map[string]*auth.Tenant
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   map[string]*auth.User{},
		roles:   map[string][]auth.Role{},
		perms:   map[string][]auth.Permission{},
		tenants: map[string]*auth.Tenant{},
	}
}

func (d *fakeDirectory) addTenant(id, name string, active bool) {
	d.tenants[id] = &auth.Tenant{ID: id, Name: name, Active: active}
}

func (d *fakeDirectory) addUser(u *auth.User, roles []string, perms []string) {
	d.users[u.ID] = u
	for _, r := range roles {
		d.roles[u.ID] = append(d.roles[u.ID], auth.Role{ID: "role-" + r, Name: r})
	}
	for _, p := range perms {
		d.perms[u.ID] = append(d.perms[u.ID], auth.Permission{ID: "perm-" + p, Name: p})
	}
}

func (d *fakeDirectory) FindUserInTenant(ctx context.Context, tenantID, userID string) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) FindUserGlobal(ctx context.Context, userID string) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) FindUserByLogin(ctx context.Context, tenantID, login string) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if !strings.EqualFold(u.Login, login) {
			continue
		}
		if tenantID != "" && u.TenantID != tenantID {
			continue
		}
		cp := *u
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (d *fakeDirectory) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[userID], nil
}

func (d *fakeDirectory) PermissionsForUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perms[userID], nil
}

func (d *fakeDirectory) CreateTenant(ctx context.Context, name string) (*auth.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tenants {
		if t.Name == name {
			return nil, auth.ErrConflict
		}
	}
	t := &auth.Tenant{ID: fmt.Sprintf("tenant-%d", len(d.tenants)+1), Name: name, Active: true}
	d.tenants[t.ID] = t
	return t, nil
}

func (d *fakeDirectory) FindTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (d *fakeDirectory) ListTenants(ctx context.Context) ([]*auth.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*auth.Tenant
	for _, t := range d.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (d *fakeDirectory) SetTenantActive(ctx context.Context, id string, active bool) (*auth.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	t.Active = active
	cp := *t
	return &cp, nil
}

// fakeGateway is an in-memory records.Gateway.
type fakeGateway struct {
	mu       sync.Mutex
	students map[string]*records.Student
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{students: map[string]*records.Student{}}
}

func (g *fakeGateway) InsertStudent(ctx context.Context, s *records.Student) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *s
	g.students[s.ID] = &cp
	return nil
}

func (g *fakeGateway) FindStudent(ctx context.Context, tenantID, id string) (*records.Student, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.students[id]
	if !ok || st.TenantID != tenantID {
		return nil, records.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (g *fakeGateway) ListStudents(ctx context.Context, tenantID string, filter records.ListFilter) ([]*records.Student, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*records.Student
	for _, st := range g.students {
		if st.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

func (g *fakeGateway) UpdateStudent(ctx context.Context, tenantID, id string, patch records.StudentPatch) (*records.Student, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.students[id]
	if !ok || st.TenantID != tenantID {
		return nil, records.ErrNotFound
	}
	if patch.FirstName != nil {
		st.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		st.LastName = *patch.LastName
	}
	if patch.Email != nil {
		st.Email = *patch.Email
	}
	if patch.Status != nil {
		st.Status = *patch.Status
	}
	cp := *st
	return &cp, nil
}

func (g *fakeGateway) DeleteStudent(ctx context.Context, tenantID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.students[id]
	if !ok || st.TenantID != tenantID {
		return records.ErrNotFound
	}
	delete(g.students, id)
	return nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	dir     *fakeDirectory
	gateway *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := newFakeDirectory()
	dir.addTenant("tenant-a", "School A", true)
	dir.addTenant("tenant-b", "School B", true)

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	dir.addUser(&auth.User{
		ID: "u-admin", TenantID: "tenant-a", Login: "director", PasswordHash: hash, Active: true,
	}, []string{auth.RoleAdmin}, []string{auth.PermStudentsRead, auth.PermStudentsWrite})
	dir.addUser(&auth.User{
		ID: "u-reader", TenantID: "tenant-a", Login: "teacher", PasswordHash: hash, Active: true,
	}, []string{"teacher"}, []string{auth.PermStudentsRead})
	dir.addUser(&auth.User{
		ID: "u-clerk", TenantID: "tenant-a", Login: "registrar", PasswordHash: hash, Active: true,
	}, []string{"teacher"}, []string{auth.PermStudentsRead, auth.PermStudentsWrite})
	dir.addUser(&auth.User{
		ID: "u-root", Login: "root", PasswordHash: hash, Active: true,
	}, []string{auth.RoleSuperAdmin}, []string{auth.PermStudentsRead, auth.PermStudentsWrite})
	dir.addUser(&auth.User{
		ID: "u-off", TenantID: "tenant-a", Login: "retired", PasswordHash: hash, Active: false,
	}, nil, nil)

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     "test-secret",
		Issuer:     "schoolcore-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sessions := session.NewMemory(time.Now)
	verifier := auth.NewVerifier(codec, sessions, 30*time.Minute, time.Now)
	resolver, err := auth.NewResolver(dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	authsvc, err := auth.NewService(codec, verifier, resolver, dir, sessions, time.Now)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	gateway := newFakeGateway()
	students, err := records.NewService(gateway, dir, time.Now)
	if err != nil {
		t.Fatalf("records.NewService: %v", err)
	}

	api := New(Options{
		Auth:     authsvc,
		Verifier: verifier,
		Resolver: resolver,
		Students: students,
		Tenants:  dir,
		Version:  "test",
	})
	return &testEnv{api: api, handler: api.Handler(), dir: dir, gateway: gateway}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authHeader, bearer+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, login, password string) auth.TokenPair {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Login: login, Password: password})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (%s)", login, rr.Code, rr.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rr.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return pair
}

func (e *testEnv) seedStudent(t *testing.T, tenantID, first, last string) *records.Student {
	t.Helper()
	st := &records.Student{
		ID:        "st-" + strings.ToLower(first),
		TenantID:  tenantID,
		FirstName: first,
		LastName:  last,
		Status:    records.StatusEnrolled,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.gateway.InsertStudent(context.Background(), st); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return st
}
