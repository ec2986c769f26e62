package opshttp

import (
	"net/http"

	"github.com/retailcore/rebates-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// StatusHandler serves the detailed per-dependency health report at
	// /status/health. nil leaves the route unregistered.
	StatusHandler http.HandlerFunc

	// VersionHandler serves build information at /version. nil leaves the
	// route unregistered.
	VersionHandler http.HandlerFunc
}
