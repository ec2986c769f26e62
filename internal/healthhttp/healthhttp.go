// Package healthhttp serves the aggregate component health report used by
// dashboards and smoke tests, on top of the probe primitives in
// internal/health.
package healthhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/version"
)

// Component is a named dependency included in the aggregate report.
type Component struct {
	Name  string
	Probe health.Probe
}

type componentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type report struct {
	Status     string                     `json:"status"`
	AppName    string                     `json:"app_name"`
	Version    string                     `json:"version"`
	Components map[string]componentStatus `json:"components"`
}

// Handler evaluates every component probe with a per-probe timeout and
// returns the aggregate as JSON. 200 when all pass, 503 otherwise.
func Handler(timeout time.Duration, components ...Component) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	vi := version.Get()

	return func(w http.ResponseWriter, r *http.Request) {
		out := report{
			Status:     "ok",
			AppName:    vi.AppName,
			Version:    vi.Version,
			Components: make(map[string]componentStatus, len(components)),
		}

		for _, c := range components {
			cs := componentStatus{Status: "ok"}
			start := time.Now()
			if c.Probe != nil {
				ctx, cancel := context.WithTimeout(r.Context(), timeout)
				if err := c.Probe.Check(ctx); err != nil {
					cs.Status = "fail"
					cs.Error = err.Error()
					out.Status = "degraded"
				}
				cancel()
			}
			cs.LatencyMS = time.Since(start).Milliseconds()
			out.Components[c.Name] = cs
		}

		code := http.StatusOK
		if out.Status != "ok" {
			code = http.StatusServiceUnavailable
			log.FromContext(r.Context()).Warn(r.Context(), "health check degraded",
				"components", degradedNames(out.Components))
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(out)
	}
}

func degradedNames(m map[string]componentStatus) []string {
	var names []string
	for name, cs := range m {
		if cs.Status != "ok" {
			names = append(names, name)
		}
	}
	return names
}
