package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"github.com/retailcore/rebates-api/internal/agreementhttp"
	"github.com/retailcore/rebates-api/internal/auth"
	"github.com/retailcore/rebates-api/internal/bq"
	"github.com/retailcore/rebates-api/internal/cfg"
	"github.com/retailcore/rebates-api/internal/docstore"
	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/healthhttp"
	"github.com/retailcore/rebates-api/internal/httpmw"
	"github.com/retailcore/rebates-api/internal/httpserver"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/masterdatahttp"
	"github.com/retailcore/rebates-api/internal/metrics"
	"github.com/retailcore/rebates-api/internal/opshttp"
	"github.com/retailcore/rebates-api/internal/otelx"
	"github.com/retailcore/rebates-api/internal/postgres"
	"github.com/retailcore/rebates-api/internal/prof"
	"github.com/retailcore/rebates-api/internal/ratelimit"
	"github.com/retailcore/rebates-api/internal/skuhttp"
	v "github.com/retailcore/rebates-api/internal/version"

	"github.com/go-chi/chi/v5"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "REBATES_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"pg_host", conf.PGHost,
		"pg_database", conf.PGDatabase,
		"redis_addr", conf.RedisAddr,
		"bq_project", conf.BQProject,
		"docs_s3_bucket", conf.DocsS3Bucket,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":     v.AppName,
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// AWS is only needed for the SSM password source and the S3 document
	// archive. Local runs configure neither.
	var s3Client *s3.Client
	pgPassword := conf.PGPassword
	if conf.PGPasswordSSMParam != "" || conf.DocsS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		if conf.DocsS3Bucket != "" {
			s3Client = s3.NewFromConfig(awsCfg)
		}
		if conf.PGPasswordSSMParam != "" {
			ssmClient := ssm.NewFromConfig(awsCfg)
			out, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
				Name:           aws.String(conf.PGPasswordSSMParam),
				WithDecryption: aws.Bool(true),
			})
			if err != nil {
				L.Error(ctx, err, "failed to read database password from SSM",
					"parameter", conf.PGPasswordSSMParam)
				os.Exit(1)
			}
			pgPassword = aws.ToString(out.Parameter.Value)
		}
	}

	pool, err := postgres.Connect(ctx, postgres.PoolOptions{
		Host:             conf.PGHost,
		Port:             conf.PGPort,
		User:             conf.PGUser,
		Password:         pgPassword,
		Database:         conf.PGDatabase,
		SSLMode:          conf.PGSSLMode,
		MaxConns:         conf.PGPoolMax,
		ConnectTimeout:   conf.PGConnectTimeout,
		StatementTimeout: conf.PGStatementTimeout,
		AppName:          v.AppName,
	})
	if err != nil {
		L.Error(ctx, err, "database connect failed", "pg_host", conf.PGHost)
		os.Exit(1)
	}
	defer pool.Close()
	go postgres.ReportPoolStats(ctx, pool, 15*time.Second, m.SetDBPoolStats)

	agreements := postgres.NewAgreementRepo(pool, m.ObserveDBQuery)
	stores := postgres.NewStoreRepo(pool, m.ObserveDBQuery)
	suppliers := postgres.NewSupplierRepo(pool, m.ObserveDBQuery)
	lookups := postgres.NewLookupRepo(pool, m.ObserveDBQuery)
	modules := postgres.NewModuleRepo(pool, m.ObserveDBQuery)

	// Rate-limit state lives in Redis so every replica shares one budget.
	// Without Redis we fall back to per-process counters.
	var limiterStore ratelimit.Store
	var cacheProbe health.Probe
	if conf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		defer rdb.Close()
		limiterStore = ratelimit.NewRedisStore(rdb)
		cacheProbe = health.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		L.Warn(ctx, "redis not configured, rate-limit counters are per-process")
		mem := ratelimit.NewMemoryStore()
		mem.StartCleanup(time.Minute)
		defer mem.Stop()
		limiterStore = mem
		cacheProbe = health.Fixed(true, "")
	}

	limiter := ratelimit.New(limiterStore,
		ratelimit.WithLimits(ratelimit.Limits{
			Second: conf.RateSecondLimit,
			Minute: conf.RateMinuteLimit,
			Hour:   conf.RateHourLimit,
			Day:    conf.RateDayLimit,
		}),
		ratelimit.WithReputationBounds(conf.RateReputationFloor, conf.RateReputationCeil),
		ratelimit.WithFailOpen(conf.RateFailOpen),
		ratelimit.WithOnDecision(func(d ratelimit.Decision) {
			m.ObserveRateLimitDecision(d.Allowed, d.Reason, d.Reputation)
		}),
		ratelimit.WithOnStoreError(func(err error) {
			m.IncRateLimitStoreError()
			L.Warn(ctx, "rate-limit store error", "error", err)
		}),
	)

	var skus *bq.Client
	analyticsProbe := health.Probe(health.Fixed(true, ""))
	if conf.BQProject != "" {
		skus, err = bq.New(ctx, conf.BQProject, conf.BQCredentialsFile, conf.BQQueryTimeout, m.ObserveBQQuery)
		if err != nil {
			L.Error(ctx, err, "bigquery init failed", "bq_project", conf.BQProject)
			os.Exit(1)
		}
		defer skus.Close()
		analyticsProbe = skus.Probe()
	} else {
		L.Warn(ctx, "bigquery not configured, sku and division lookups disabled")
	}

	var docs docstore.Archive
	if s3Client != nil {
		docs = docstore.NewS3Archive(s3Client, conf.DocsS3Bucket, conf.DocsS3Prefix, m.IncDocArchiveOp)
	}

	identityProbe := health.Probe(health.Fixed(true, ""))

	opts := &httpserver.Options{
		Logger:    L,
		Port:      conf.HTTPPort,
		MetricsMW: m.Middleware,
		OnPanic:   m.IncHttpPanic,
		Limiter:   limiter,
		ClientIPOpts: httpmw.ClientIPOptions{
			TrustedHops: conf.TrustedHops,
		},
		CORSOrigins:          conf.CORSOriginList(),
		CORSAllowCredentials: conf.CORSAllowCredentials,
		TracingEnabled:       conf.EnableTracing,
	}

	if conf.IDPPublicKey != "" {
		verifier, err := auth.NewVerifier(conf.IDPPublicKey, conf.IDPAudience)
		if err != nil {
			L.Error(ctx, err, "identity provider key invalid")
			os.Exit(1)
		}
		opts.AuthMW = auth.Middleware(verifier, auth.MiddlewareOptions{
			ExcludedPaths: []string{"/-/healthy", "/-/ready"},
		})
	} else {
		L.Warn(ctx, "identity provider key not configured, requests are unauthenticated")
		identityProbe = health.Fixed(false, "identity provider key not configured")
	}

	agreementAPI := agreementhttp.NewAPI(agreements, docs, L)
	masterdataAPI := masterdatahttp.NewAPI(stores, suppliers, divisionSource(skus), lookups, modules, L)
	skuAPI := skuhttp.NewAPI(skuSource(skus), L)

	opts.APIRoutes = func(r chi.Router) {
		agreementAPI.RegisterRoutes(r)
		masterdataAPI.RegisterRoutes(r)
		skuAPI.RegisterRoutes(r)
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), postgres.Probe(pool))
	opts.Health = health.Fixed(true, "")
	opts.Readiness = readiness

	apiStop, err := httpserver.Start(ctx, opts)
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = apiStop(context.Background()) }()

	statusHandler := healthhttp.Handler(5*time.Second,
		healthhttp.Component{Name: "database", Probe: postgres.Probe(pool)},
		healthhttp.Component{Name: "cache", Probe: cacheProbe},
		healthhttp.Component{Name: "analytics", Probe: analyticsProbe},
		healthhttp.Component{Name: "identity", Probe: identityProbe},
	)

	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:           conf.AdminPort,
		Metrics:        m.Handler(),
		EnablePprof:    conf.EnablePprof,
		Health:         health.Fixed(true, ""),
		Readiness:      readiness,
		StatusHandler:  statusHandler,
		VersionHandler: versionHandler(vi),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// fail readiness so the load balancer drains us before the listeners
	// close
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(10 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := apiStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// divisionSource and skuSource return a nil interface for a nil client so
// the handlers can detect the unconfigured case.
func divisionSource(c *bq.Client) masterdatahttp.DivisionSource {
	if c == nil {
		return nil
	}
	return c
}

func skuSource(c *bq.Client) skuhttp.SKUSource {
	if c == nil {
		return nil
	}
	return c
}

func versionHandler(vi v.Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(vi)
	}
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
