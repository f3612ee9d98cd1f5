package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"clypse/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	pingTimeout = 2 * time.Second
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Catalog    string `json:"catalog"`
	QueueDepth int    `json:"queueDepth"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// ping reports whether the catalog answers within pingTimeout.
func (h *Handlers) ping(ctx context.Context) error {
	if h.cfg.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.cfg.DB.Ping(ctx)
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Catalog:      "ok",
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.cfg.Queue != nil {
		response.QueueDepth = h.cfg.Queue.Len()
	}

	code := http.StatusOK
	if err := h.ping(r.Context()); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Catalog = err.Error()
		code = http.StatusServiceUnavailable
	}

	writeJSONStatusCode(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the catalog is reachable
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
}
