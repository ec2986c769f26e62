package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/httpmw"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/ratelimit"
)

type Options struct {
	Logger log.Logger
	Port   int

	// AuthMW validates bearer tokens and the country header. nil disables
	// authentication (local development only).
	AuthMW func(http.Handler) http.Handler

	// MetricsMW instruments requests; nil skips instrumentation.
	MetricsMW func(http.Handler) http.Handler

	// OnPanic is called for every panic the recovery middleware catches.
	OnPanic func()

	// Limiter enforces the tiered rate limits; nil disables limiting.
	Limiter *ratelimit.Limiter

	// APIRoutes registers the endpoint handlers on the router.
	APIRoutes func(chi.Router)

	Health    health.Probe
	Readiness health.Probe

	ClientIPOpts httpmw.ClientIPOptions

	CORSOrigins          []string
	CORSAllowCredentials bool

	// MaxBodyBytes caps request bodies. Zero means the default 10 MB,
	// sized for document uploads.
	MaxBodyBytes int64

	TracingEnabled bool
}
