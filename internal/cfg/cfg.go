// Package cfg holds the application configuration: stdlib flags with
// defaults inline, filled from REBATES_-prefixed environment variables,
// validated as a whole before startup proceeds.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/retailcore/rebates-api/internal/log"
)

type App struct {
	Environment     string
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnableTracing   bool
	EnablePyroscope bool
	OTLPEndpoint    string
	TraceSample     float64
	PyroServer      string
	PyroTenantID    string

	// PostgreSQL
	PGHost             string
	PGPort             int
	PGUser             string
	PGPassword         string
	PGPasswordSSMParam string
	PGDatabase         string
	PGSSLMode          string
	PGPoolMax          int
	PGConnectTimeout   time.Duration
	PGStatementTimeout time.Duration

	// Redis (rate-limit counters + reputation)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// BigQuery (SKU analytics)
	BQProject         string
	BQCredentialsFile string
	BQQueryTimeout    time.Duration

	// Identity provider
	IDPPublicKey string
	IDPAudience  string

	// CORS
	CORSOrigins          string
	CORSAllowCredentials bool

	// Rate limiting
	RateSecondLimit     int
	RateMinuteLimit     int
	RateHourLimit       int
	RateDayLimit        int
	RateReputationFloor int
	RateReputationCeil  int
	RateFailOpen        bool

	TrustedHops int

	// Agreement document archive (optional)
	DocsS3Bucket string
	DocsS3Prefix string
}

// Register binds all config fields to the given FlagSet with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Environment, "environment", "development", "development|staging|production")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.StringVar(&c.PGHost, "pg-host", "localhost", "PostgreSQL host")
	fs.IntVar(&c.PGPort, "pg-port", 5432, "PostgreSQL port")
	fs.StringVar(&c.PGUser, "pg-user", "rebates", "PostgreSQL user")
	fs.StringVar(&c.PGPassword, "pg-password", "", "PostgreSQL password (prefer -pg-password-ssm-param)")
	fs.StringVar(&c.PGPasswordSSMParam, "pg-password-ssm-param", "", "SSM parameter name holding the PostgreSQL password")
	fs.StringVar(&c.PGDatabase, "pg-database", "rebates", "PostgreSQL database name")
	fs.StringVar(&c.PGSSLMode, "pg-sslmode", "prefer", "disable|allow|prefer|require|verify-ca|verify-full")
	fs.IntVar(&c.PGPoolMax, "pg-pool-max", 10, "max pooled PostgreSQL connections (1..200)")
	fs.DurationVar(&c.PGConnectTimeout, "pg-connect-timeout", 10*time.Second, "PostgreSQL connect timeout")
	fs.DurationVar(&c.PGStatementTimeout, "pg-statement-timeout", 30*time.Second, "per-statement timeout")

	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address (host:port); empty uses in-process rate-limit counters")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database index")

	fs.StringVar(&c.BQProject, "bq-project", "", "BigQuery project id (empty disables SKU lookup)")
	fs.StringVar(&c.BQCredentialsFile, "bq-credentials-file", "", "path to BigQuery service-account credentials JSON")
	fs.DurationVar(&c.BQQueryTimeout, "bq-query-timeout", 60*time.Second, "BigQuery query timeout")

	fs.StringVar(&c.IDPPublicKey, "idp-public-key", "", "PEM body (base64, no header) of the identity provider RS256 public key")
	fs.StringVar(&c.IDPAudience, "idp-audience", "rebate-management-client", "expected JWT audience")

	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma-separated allowed CORS origins (empty allows all)")
	fs.BoolVar(&c.CORSAllowCredentials, "cors-allow-credentials", false, "allow credentialed CORS requests")

	fs.IntVar(&c.RateSecondLimit, "rate-second-limit", 10, "base per-second request limit per identity")
	fs.IntVar(&c.RateMinuteLimit, "rate-minute-limit", 120, "base per-minute request limit per identity")
	fs.IntVar(&c.RateHourLimit, "rate-hour-limit", 2000, "base per-hour request limit per identity")
	fs.IntVar(&c.RateDayLimit, "rate-day-limit", 10000, "base per-day request limit per identity")
	fs.IntVar(&c.RateReputationFloor, "rate-reputation-floor", 10, "reputation at or below which identities are always rejected")
	fs.IntVar(&c.RateReputationCeil, "rate-reputation-ceil", 90, "reputation at/above which identities bypass counters")
	fs.BoolVar(&c.RateFailOpen, "rate-fail-open", true, "admit requests when the rate-limit counter store is unavailable")

	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "number of trusted reverse proxies for client IP resolution")

	fs.StringVar(&c.DocsS3Bucket, "docs-s3-bucket", "", "S3 bucket for agreement document archive (empty disables)")
	fs.StringVar(&c.DocsS3Prefix, "docs-s3-prefix", "agreements", "S3 key prefix for agreement documents")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// CORSOriginList splits the configured origins, returning ["*"] when unset.
func (c App) CORSOriginList() []string {
	if strings.TrimSpace(c.CORSOrigins) == "" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	switch c.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("invalid ENVIRONMENT %q (must be development|staging|production)", c.Environment))
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if c.PGHost == "" {
		errs = append(errs, fmt.Errorf("PG_HOST is required"))
	}
	if c.PGPort < 1 || c.PGPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid PG_PORT %d (must be 1..65535)", c.PGPort))
	}
	if c.PGUser == "" {
		errs = append(errs, fmt.Errorf("PG_USER is required"))
	}
	if c.PGDatabase == "" {
		errs = append(errs, fmt.Errorf("PG_DATABASE is required"))
	}
	if c.PGPassword == "" && c.PGPasswordSSMParam == "" {
		errs = append(errs, fmt.Errorf("one of PG_PASSWORD or PG_PASSWORD_SSM_PARAM is required"))
	}
	switch c.PGSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("invalid PG_SSLMODE %q", c.PGSSLMode))
	}
	if c.PGPoolMax < 1 || c.PGPoolMax > 200 {
		errs = append(errs, fmt.Errorf("PG_POOL_MAX must be 1..200 (got %d)", c.PGPoolMax))
	}
	if c.PGConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PG_CONNECT_TIMEOUT must be positive"))
	}

	if c.BQProject != "" && c.BQCredentialsFile == "" {
		errs = append(errs, fmt.Errorf("BQ_CREDENTIALS_FILE required when BQ_PROJECT is set"))
	}

	// Fail-closed in production: auth is mandatory once we leave dev.
	if c.Environment == "production" && c.IDPPublicKey == "" {
		errs = append(errs, fmt.Errorf("IDP_PUBLIC_KEY is required in production"))
	}

	if c.RateSecondLimit < 1 || c.RateMinuteLimit < 1 || c.RateHourLimit < 1 || c.RateDayLimit < 1 {
		errs = append(errs, fmt.Errorf("rate limits must all be positive"))
	}
	if c.RateReputationFloor < 0 || c.RateReputationCeil > 100 || c.RateReputationFloor >= c.RateReputationCeil {
		errs = append(errs, fmt.Errorf("reputation bounds invalid: floor %d must be >= 0 and < ceil %d <= 100",
			c.RateReputationFloor, c.RateReputationCeil))
	}

	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..8 (got %d)", c.TrustedHops))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
