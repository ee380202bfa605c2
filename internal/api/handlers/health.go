package handlers

import (
	"context"
	"net/http"
	"time"

	"compliance-lab/pkg/logger"
)

// Pinger is anything whose reachability can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version   string
	store     Pinger
	cache     Pinger
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(version string, store, cache Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		version:   version,
		store:     store,
		cache:     cache,
		logger:    log.WithComponent("health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - checks the record store and cache
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := http.StatusOK
	overallStatus := "ready"

	probe := func(name string, p Pinger) {
		if p == nil {
			checks[name] = "not configured"
			return
		}
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overallStatus = "not ready"
			return
		}
		checks[name] = "healthy"
	}

	probe("store", h.store)
	probe("redis", h.cache)

	writeJSON(w, status, HealthResponse{
		Status:    overallStatus,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
