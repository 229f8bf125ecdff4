package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"schoolcore.org/internal/audit"
	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/obs"
)

const tenantHeader = "X-Tenant-ID"

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// attemptLimiter throttles login attempts per client IP and login pair so a
// single noisy client cannot burn through the credential space. Keys arrive
// unauthenticated, so stale buckets are swept on a timer or the map grows
// without bound.
type attemptLimiter struct {
	mu      sync.Mutex
	buckets map[string]*attemptBucket
	burst   int
	perMin  int
	ttl     time.Duration
}

type attemptBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newAttemptLimiter(burst, perMinute int) *attemptLimiter {
	if burst <= 0 {
		burst = 5
	}
	if perMinute <= 0 {
		perMinute = 10
	}
	l := &attemptLimiter{
		buckets: make(map[string]*attemptBucket),
		burst:   burst,
		perMin:  perMinute,
		ttl:     10 * time.Minute,
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for range ticker.C {
			l.sweep(time.Now())
		}
	}()
	return l
}

func (l *attemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &attemptBucket{lim: rate.NewLimiter(rate.Limit(float64(l.perMin)/60), l.burst)}
		l.buckets[key] = b
	}
	b.seen = time.Now()
	return b.lim.Allow()
}

func (l *attemptLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, k)
		}
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "login and password are required")
		return
	}
	tenantHint := strings.TrimSpace(req.TenantID)
	if tenantHint == "" {
		tenantHint = strings.TrimSpace(r.Header.Get(tenantHeader))
	}

	if !a.logins.allow(clientIP(r) + "|" + strings.ToLower(login)) {
		obs.AuthFailure("login_rate_limited")
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	pair, principal, err := a.authsvc.Login(r.Context(), tenantHint, login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInactiveAccount):
			obs.AuthFailure("inactive_account")
			_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{
				"login":  login,
				"reason": "inactive_account",
			})
			writeError(w, r, http.StatusBadRequest, "account is inactive")
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.AuthFailure("bad_credentials")
			_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{
				"login":  login,
				"reason": "bad_credentials",
			})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"login":     login,
		"user_id":   principal.User.ID,
		"tenant_id": principal.User.TenantID,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}

	pair, principal, err := a.authsvc.Refresh(r.Context(), token)
	if err != nil {
		obs.AuthFailure("refresh_rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh.success", map[string]any{
		"user_id":   principal.User.ID,
		"tenant_id": principal.User.TenantID,
	})
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes best-effort and never fails: a client holding an
// expired or garbled token still ends up logged out.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		a.authsvc.Logout(r.Context(), token)
		_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "logged_out",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
