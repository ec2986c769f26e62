package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/retailcore/rebates-api/internal/httpmw"
	"github.com/retailcore/rebates-api/internal/log"
)

// KeyFunc derives the rate-limit identity from a request. The default keys
// on the resolved client IP; server wiring substitutes one that prefers the
// authenticated user's email.
type KeyFunc func(*http.Request) string

// IPKey keys anonymous traffic on the client IP resolved by the clientip
// middleware.
func IPKey(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}

// Middleware enforces the limiter for all routes it wraps at the given risk
// level. Every response carries X-RateLimit-Limit and X-RateLimit-Remaining;
// denials return 429 with Retry-After.
func Middleware(l *Limiter, risk RiskLevel, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = IPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), key(r), risk)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(d.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			log.FromContext(r.Context()).Warn(r.Context(), "request rate limited",
				"reason", d.Reason,
				"retry_after_seconds", retryAfter,
				"reputation", d.Reputation,
			)

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":               "rate limit exceeded",
				"reason":              d.Reason,
				"retry_after_seconds": retryAfter,
			})
		})
	}
}
