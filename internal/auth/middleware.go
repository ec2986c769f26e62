package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/retailcore/rebates-api/internal/log"
)

// MiddlewareOptions configures the auth middleware.
type MiddlewareOptions struct {
	// ExcludedPaths skip authentication entirely (health, version).
	ExcludedPaths []string
}

// Middleware rejects requests without a valid bearer token and country
// header, and stores the resulting User in the request context.
func Middleware(v *Verifier, opts MiddlewareOptions) func(http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(opts.ExcludedPaths))
	for _, p := range opts.ExcludedPaths {
		excluded[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := excluded[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			country := strings.ToUpper(strings.TrimSpace(r.Header.Get("country")))
			if country == "" {
				writeAuthError(w, http.StatusUnprocessableEntity, "country header is required")
				return
			}
			buID := BusinessUnitForCountry(country)
			if buID == 0 {
				writeAuthError(w, http.StatusUnprocessableEntity, "unsupported country")
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.FromContext(r.Context()).Warn(r.Context(), "token rejected", "reason", err.Error())
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			u := User{
				Name:           claims.Name,
				Email:          claims.Email,
				Subject:        claims.Subject,
				Country:        country,
				BusinessUnitID: buID,
				Roles:          claims.Roles(v.Audience()),
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireRoles gates a route group on identity provider roles. Must run
// inside Middleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !u.HasRole(roles...) {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
