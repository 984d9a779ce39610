package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness and readiness probes.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	// credentials reports whether a credential is stored, if set
	credentials func(context.Context) bool
	startTime   time.Time
}

// NewHealthChecker returns a ready HealthChecker. credentials may be nil.
func NewHealthChecker(credentials func(context.Context) bool) *HealthChecker {
	h := &HealthChecker{
		credentials: credentials,
		startTime:   time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetShuttingDown marks the server as draining. Readiness fails from then on.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	// Credential is "stored" or "missing". A missing credential does not
	// make the server unready: the consent flow is served by this process.
	Credential string `json:"credential,omitempty"`
}

// checks evaluates the readiness conditions.
func (h *HealthChecker) checks() (map[string]string, string) {
	checks := map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
	status := healthStatusOK

	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		status = healthStatusNotReady
	}
	if h.shuttingDown.Load() {
		checks["shutdown"] = healthStatusShuttingDown
		if status == healthStatusOK {
			status = healthStatusShuttingDown
		}
	}
	return checks, status
}

// LivenessHandler answers /healthz. It only proves the process serves HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz with 503 while not ready or draining.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, status := h.checks()
		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if status != healthStatusOK {
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// DetailedHealthHandler answers /healthz/detailed with uptime and whether a
// credential is stored.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, status := h.checks()
		resp := DetailedHealthResponse{
			Status: status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.credentials != nil {
			resp.Credential = "missing"
			if h.credentials(r.Context()) {
				resp.Credential = "stored"
			}
		}

		code := http.StatusOK
		if status != healthStatusOK {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// RegisterHealthEndpoints registers the probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}

func writeHealth(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
