// Package httpapi exposes the authentication and student-records surface
// over HTTP plus a readiness-backed gRPC health listener.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/obs"
	"schoolcore.org/internal/records"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// TenantAdmin is the slice of the directory store the tenant endpoints need.
type TenantAdmin interface {
	CreateTenant(ctx context.Context, name string) (*auth.Tenant, error)
	FindTenant(ctx context.Context, id string) (*auth.Tenant, error)
	ListTenants(ctx context.Context) ([]*auth.Tenant, error)
	SetTenantActive(ctx context.Context, id string, active bool) (*auth.Tenant, error)
}

// Options wires the API to its services.
type Options struct {
	Auth     *auth.Service
	Verifier *auth.Verifier
	Resolver *auth.Resolver
	Students *records.Service
	Tenants  TenantAdmin
	Ready    ReadyProbe
	Version  string

	// Login attempt limiter; zero values fall back to defaults.
	LoginRateBurst     int
	LoginRatePerMinute int
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	authsvc    *auth.Service
	verifier   *auth.Verifier
	resolver   *auth.Resolver
	students   *records.Service
	tenants    TenantAdmin
	readyProbe ReadyProbe
	version    string
	logins     *attemptLimiter
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		authsvc:    opts.Auth,
		verifier:   opts.Verifier,
		resolver:   opts.Resolver,
		students:   opts.Students,
		tenants:    opts.Tenants,
		readyProbe: opts.Ready,
		version:    opts.Version,
		logins:     newAttemptLimiter(opts.LoginRateBurst, opts.LoginRatePerMinute),
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// tenant-scoped records
	a.mux.HandleFunc("/v1/students", a.handleStudents)
	a.mux.HandleFunc("/v1/students/", a.handleStudentByID)

	// tenant administration
	a.mux.HandleFunc("/v1/tenants", a.handleTenants)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantByID)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RateLimit(h, 100, 50)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "schoolcore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "schoolcore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
