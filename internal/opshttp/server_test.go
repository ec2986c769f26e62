package opshttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/metrics"
)

func TestNewMux_HealthAndMetrics(t *testing.T) {
	m := metrics.New()
	mux := NewMux(Options{
		Metrics:   m.Handler(),
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "draining"),
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "draining") {
		t.Errorf("ready: %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics scrape: %d", rec.Code)
	}
}

func TestNewMux_PprofToggle(t *testing.T) {
	mux := NewMux(Options{EnablePprof: false, Health: health.Fixed(true, ""), Readiness: health.Fixed(true, "")})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("pprof disabled should 404, got %d", rec.Code)
	}

	mux = NewMux(Options{EnablePprof: true, Health: health.Fixed(true, ""), Readiness: health.Fixed(true, "")})
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("pprof enabled should serve index, got %d", rec.Code)
	}
}

func TestNewMux_StatusAndVersion(t *testing.T) {
	mux := NewMux(Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(true, ""),
		StatusHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		VersionHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"version":"test"}`))
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	if !strings.Contains(rec.Body.String(), "test") {
		t.Errorf("version: %s", rec.Body)
	}
}
