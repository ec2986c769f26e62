package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retailcore/rebates-api/internal/version"
)

type ServerMetrics struct {
	reg      *prometheus.Registry
	handler  http.Handler
	inflight prometheus.Gauge

	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDecisions  *prometheus.CounterVec
	ratelimitStoreError prometheus.Counter
	reputationScore     prometheus.Histogram

	dbQueryDur    *prometheus.HistogramVec
	dbPoolTotal   prometheus.Gauge
	dbPoolIdle    prometheus.Gauge
	dbPoolWaiting prometheus.Gauge

	bqQueriesTotal *prometheus.CounterVec
	bqQueryDur     prometheus.Histogram

	docArchiveOps *prometheus.CounterVec

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics.
// Safe labels only (method, route, code) to avoid path/cardinality explosions.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limiter decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		ratelimitStoreError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Counter store failures observed by the rate limiter",
		}),
		reputationScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratelimit_reputation_score",
			Help:    "Reputation score distribution observed at decision time",
			Buckets: []float64{10, 25, 40, 50, 60, 75, 90, 100},
		}),
		dbQueryDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "PostgreSQL query latency by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		dbPoolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_connections_total",
			Help: "Total connections currently held by the pool",
		}),
		dbPoolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_connections_idle",
			Help: "Idle connections in the pool",
		}),
		dbPoolWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_connections_acquired",
			Help: "Connections currently checked out of the pool",
		}),
		bqQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bigquery_queries_total",
			Help: "BigQuery SKU lookups by result",
		}, []string{"result"}),
		bqQueryDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bigquery_query_duration_seconds",
			Help:    "BigQuery SKU lookup latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		docArchiveOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "document_archive_operations_total",
			Help: "Agreement document archive operations by op and result",
		}, []string{"op", "result"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}

	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDecisions,
		m.ratelimitStoreError,
		m.reputationScore,
		m.dbQueryDur,
		m.dbPoolTotal,
		m.dbPoolIdle,
		m.dbPoolWaiting,
		m.bqQueriesTotal,
		m.bqQueryDur,
		m.docArchiveOps,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        vi.AppName,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"vcs_dirty":  dirty,
		"go_version": vi.GoVersion,
	}).Set(1)
}

func (m *ServerMetrics) ObserveRateLimitDecision(allowed bool, reason string, reputation int) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	if reason == "" {
		reason = "ok"
	}
	m.ratelimitDecisions.WithLabelValues(outcome, reason).Inc()
	m.reputationScore.Observe(float64(reputation))
}

func (m *ServerMetrics) IncRateLimitStoreError() { m.ratelimitStoreError.Inc() }

func (m *ServerMetrics) ObserveDBQuery(operation string, d time.Duration) {
	m.dbQueryDur.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *ServerMetrics) SetDBPoolStats(total, idle, acquired int) {
	m.dbPoolTotal.Set(float64(total))
	m.dbPoolIdle.Set(float64(idle))
	m.dbPoolWaiting.Set(float64(acquired))
}

func (m *ServerMetrics) ObserveBQQuery(result string, d time.Duration) {
	m.bqQueriesTotal.WithLabelValues(result).Inc()
	m.bqQueryDur.Observe(d.Seconds())
}

func (m *ServerMetrics) IncDocArchiveOp(op, result string) {
	m.docArchiveOps.WithLabelValues(op, result).Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
