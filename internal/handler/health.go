package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"atstore-api/pkg/response"
)

// Dependency is a backing service checked by the readiness probes.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler contains the health endpoints and their dependencies.
type Handler struct {
	service   string
	version   string
	startTime time.Time
	deps      []Dependency
}

// New creates a new handler.
func New(service, version string, deps ...Dependency) *Handler {
	return &Handler{
		service:   service,
		version:   version,
		startTime: time.Now(),
		deps:      deps,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (h *Handler) runChecks(ctx context.Context) ([]Check, bool) {
	checks := []Check{{Name: "api", Status: "ok"}}
	allReady := true
	for _, dep := range h.deps {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := dep.Ping(pingCtx)
		cancel()

		status := "ok"
		if err != nil {
			status = "error"
			allReady = false
		}
		checks = append(checks, Check{Name: dep.Name, Status: status})
	}
	return checks, allReady
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, allReady := h.runChecks(r.Context())

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, resp)
}

// StatusResponse represents the unified status response for uptime monitoring.
type StatusResponse struct {
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	PingMS        int64   `json:"ping_ms"`
	MemoryMB      float64 `json:"memory_mb"`
	Checks        []Check `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requestStart := time.Now()
	checks, allReady := h.runChecks(r.Context())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	status := "ok"
	if !allReady {
		status = "degraded"
	}

	resp := StatusResponse{
		Service:       h.service,
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		PingMS:        time.Since(requestStart).Milliseconds(),
		MemoryMB:      float64(int(memoryMB*100)) / 100,
		Checks:        checks,
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}
