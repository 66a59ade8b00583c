package handler

import (
	"context"
	"net/http"
	"time"
)

const readyzCheckTimeout = 5 * time.Second

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks []dependencyCheck
}

type dependencyCheck struct {
	name   string
	pinger Pinger
}

// NewHealthHandler wires the probe endpoints. Nil dependencies are
// reported as not configured rather than failing readiness.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{
		checks: []dependencyCheck{
			{name: "postgres", pinger: db},
			{name: "redis", pinger: cache},
		},
	}
}

// HealthResponse is the body for both probes.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz answers 200 whenever the process is serving. It never touches
// dependencies, so a stuck database cannot make the orchestrator restart us.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency and answers 503 if any fails, taking the
// instance out of rotation until storage recovers.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for _, c := range h.checks {
		if c.pinger == nil {
			results[c.name] = "not configured"
			continue
		}
		if err := c.pinger.Ping(ctx); err != nil {
			results[c.name] = "error: " + err.Error()
			ready = false
			continue
		}
		results[c.name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !ready {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: results})
}
