package httpserver

import (
	"net/http"
	"strings"

	"github.com/retailcore/rebates-api/internal/auth"
	"github.com/retailcore/rebates-api/internal/ratelimit"
)

// UserOrIPKey keys rate limiting on the authenticated user when present,
// falling back to the client IP for anonymous traffic. Keying on the user
// keeps one office NAT from sharing a single budget.
func UserOrIPKey(r *http.Request) string {
	if u, ok := auth.UserFromContext(r.Context()); ok && u.Email != "" {
		return "user:" + u.Email
	}
	return ratelimit.IPKey(r)
}

// riskForRequest classifies endpoints by abuse impact. Warehouse-backed
// lookups are the most expensive per call, mutations sit in the middle,
// plain reads get the full budget.
func riskForRequest(r *http.Request) ratelimit.RiskLevel {
	p := r.URL.Path
	switch {
	case strings.HasSuffix(p, "/search"), strings.HasPrefix(p, "/api/v1/skus"):
		return ratelimit.RiskHigh
	case strings.HasSuffix(p, "/document") && r.Method == http.MethodPut:
		return ratelimit.RiskHigh
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		return ratelimit.RiskLow
	default:
		return ratelimit.RiskMedium
	}
}

// TieredRateLimit applies the limiter with a per-request risk level. Health
// endpoints bypass the limiter so orchestrator probes can never be starved
// by tenant traffic. A nil risk classifier defaults to riskForRequest, and a
// level the tier map does not know falls back to medium.
func TieredRateLimit(l *ratelimit.Limiter, key ratelimit.KeyFunc, risk func(*http.Request) ratelimit.RiskLevel) func(http.Handler) http.Handler {
	if key == nil {
		key = UserOrIPKey
	}
	if risk == nil {
		risk = riskForRequest
	}
	return func(next http.Handler) http.Handler {
		tiers := map[ratelimit.RiskLevel]http.Handler{
			ratelimit.RiskLow:      ratelimit.Middleware(l, ratelimit.RiskLow, key)(next),
			ratelimit.RiskMedium:   ratelimit.Middleware(l, ratelimit.RiskMedium, key)(next),
			ratelimit.RiskHigh:     ratelimit.Middleware(l, ratelimit.RiskHigh, key)(next),
			ratelimit.RiskCritical: ratelimit.Middleware(l, ratelimit.RiskCritical, key)(next),
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready" {
				next.ServeHTTP(w, r)
				return
			}
			tier, ok := tiers[risk(r)]
			if !ok {
				tier = tiers[ratelimit.RiskMedium]
			}
			tier.ServeHTTP(w, r)
		})
	}
}
