package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths reachable without a verified access token. Refresh and logout are
// listed because their handlers consume the raw token themselves: refresh
// must accept refresh-type tokens and logout must accept expired ones.
var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.verifier == nil || a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.AuthFailure("missing_token")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			obs.AuthFailure("invalid_token")
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := r.Context()
		if claims.TenantID != "" {
			ctx = auth.ContextWithTenant(ctx, claims.TenantID)
		}

		principal, err := a.resolver.Resolve(ctx, claims)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				obs.AuthFailure("unresolvable_principal")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		// A token without a tenant claim is only usable by super-admins.
		if claims.TenantID == "" && !principal.IsSuperAdmin() {
			obs.AuthFailure("tenant_required")
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx = auth.ContextWithPrincipal(ctx, principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))

		// Sliding idle window moves only after the request is served.
		a.verifier.Touch(r.Context(), claims)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
