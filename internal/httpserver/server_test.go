package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/ratelimit"
)

func TestRiskForRequest(t *testing.T) {
	cases := []struct {
		method, path string
		want         ratelimit.RiskLevel
	}{
		{http.MethodGet, "/api/v1/agreements/1", ratelimit.RiskLow},
		{http.MethodPost, "/api/v1/agreements", ratelimit.RiskMedium},
		{http.MethodPut, "/api/v1/agreements/1", ratelimit.RiskMedium},
		{http.MethodPost, "/api/v1/agreements/search", ratelimit.RiskHigh},
		{http.MethodPost, "/api/v1/skus/codes", ratelimit.RiskHigh},
		{http.MethodPut, "/api/v1/agreements/1/document", ratelimit.RiskHigh},
		{http.MethodGet, "/api/v1/agreements/1/document", ratelimit.RiskLow},
	}
	for _, c := range cases {
		r := httptest.NewRequest(c.method, c.path, nil)
		if got := riskForRequest(r); got != c.want {
			t.Errorf("%s %s: risk = %s, want %s", c.method, c.path, got, c.want)
		}
	}
}

func TestTieredRateLimit_HealthBypassesLimiter(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	l := ratelimit.New(store, ratelimit.WithLimits(ratelimit.Limits{Second: 1, Minute: 1, Hour: 1, Day: 1}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := TieredRateLimit(l, func(*http.Request) string { return "probe" }, nil)(next)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("probe %d limited: %d", i, rec.Code)
		}
	}
}

func TestTieredRateLimit_HighRiskTightensBudget(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	l := ratelimit.New(store, ratelimit.WithLimits(ratelimit.Limits{Second: 8, Minute: 1000, Hour: 1000, Day: 1000}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := TieredRateLimit(l, func(*http.Request) string { return "tenant" }, nil)(next)

	// high risk scales the second window to 8*0.25 = 2
	allowed := 0
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/skus/codes", nil))
		if rec.Code == http.StatusOK {
			allowed++
		} else if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}

func TestTieredRateLimit_CriticalRiskServed(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	l := ratelimit.New(store, ratelimit.WithLimits(ratelimit.Limits{Second: 10, Minute: 1000, Hour: 1000, Day: 1000}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	critical := func(*http.Request) ratelimit.RiskLevel { return ratelimit.RiskCritical }
	h := TieredRateLimit(l, func(*http.Request) string { return "tenant" }, critical)(next)

	// critical risk scales the second window to 10*0.1 = 1
	allowed := 0
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agreements", nil))
		if rec.Code == http.StatusOK {
			allowed++
		} else if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if allowed != 1 {
		t.Errorf("allowed = %d, want 1", allowed)
	}
}

func TestTieredRateLimit_UnknownRiskFallsBackToMedium(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	l := ratelimit.New(store, ratelimit.WithLimits(ratelimit.Limits{Second: 4, Minute: 1000, Hour: 1000, Day: 1000}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	unknown := func(*http.Request) ratelimit.RiskLevel { return ratelimit.RiskLevel("experimental") }
	h := TieredRateLimit(l, func(*http.Request) string { return "tenant" }, unknown)(next)

	// medium fallback scales the second window to 4*0.5 = 2
	allowed := 0
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agreements", nil))
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}

func TestNewHandler_HealthAndHeaders(t *testing.T) {
	opts := &Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(true, ""),
		APIRoutes: func(r chi.Router) {
			r.Get("/api/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
		CORSOrigins: []string{"*"},
	}
	h := NewHandler(opts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ping: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id header missing")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestNewHandler_CORSPreflight(t *testing.T) {
	opts := &Options{
		CORSOrigins: []string{"https://app.example.com"},
		APIRoutes: func(r chi.Router) {
			r.Post("/api/v1/agreements/search", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
	}
	h := NewHandler(opts)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/agreements/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "country, authorization")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestNewHandler_PanicBecomes500(t *testing.T) {
	opts := &Options{
		APIRoutes: func(r chi.Router) {
			r.Get("/api/v1/boom", func(http.ResponseWriter, *http.Request) {
				panic("kaput")
			})
		},
		CORSOrigins: []string{"*"},
	}
	h := NewHandler(opts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
