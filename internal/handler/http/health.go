// Package http holds the HTTP plumbing shared by the API handlers: health
// probes, metrics and the middleware chain.
package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"sonde-catalog/internal/usecase/ingest"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // RFC 3339
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string                 `json:"status"` // "healthy", "degraded" or "unhealthy"
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DispatcherStats is the part of the archive dispatcher the probes read.
type DispatcherStats interface {
	Stats() ingest.Stats
}

// HealthHandler reports catalog store and dispatcher health.
type HealthHandler struct {
	DB         *sql.DB
	Dispatcher DispatcherStats // optional
	Version    string
}

// ServeHTTP returns 200 when every check passes or is degraded, 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	allHealthy := true

	if h.DB != nil {
		checks["database"] = checkDatabase(ctx, h.DB)
	} else {
		checks["database"] = CheckStatus{Status: "unhealthy", Message: "not configured"}
	}

	if h.Dispatcher != nil {
		checks["dispatcher"] = checkDispatcher(h.Dispatcher.Stats())
	}

	for _, c := range checks {
		if c.Status == "unhealthy" {
			allHealthy = false
		}
	}

	status, statusCode := "healthy", http.StatusOK
	if !allHealthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	}); err != nil {
		slog.Warn("health: failed to encode response", slog.Any("error", err))
	}
}

// checkDatabase pings the store and reports pool statistics.
func checkDatabase(ctx context.Context, db *sql.DB) CheckStatus {
	if err := db.PingContext(ctx); err != nil {
		return CheckStatus{Status: "unhealthy", Message: err.Error()}
	}

	stats := db.Stats()
	details := map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}

	// guard against zero division when the pool is unbounded
	if stats.MaxOpenConnections == 0 {
		return CheckStatus{
			Status:  "degraded",
			Message: "connection pool max connections not configured",
			Details: details,
		}
	}

	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilization
	if utilization >= 80.0 {
		return CheckStatus{
			Status:  "degraded",
			Message: "connection pool utilization above 80%",
			Details: details,
		}
	}

	return CheckStatus{Status: "healthy", Details: details}
}

// checkDispatcher is degraded when the queue is full, unhealthy once
// the dispatcher stopped accepting jobs.
func checkDispatcher(st ingest.Stats) CheckStatus {
	details := map[string]interface{}{
		"queued":   st.Queued,
		"running":  st.Running,
		"retained": st.Retained,
		"capacity": st.Capacity,
	}
	switch {
	case st.Closed:
		return CheckStatus{Status: "unhealthy", Message: "dispatcher shut down", Details: details}
	case st.Queued >= st.Capacity:
		return CheckStatus{Status: "degraded", Message: "archive queue full", Details: details}
	default:
		return CheckStatus{Status: "healthy", Details: details}
	}
}

// ReadyHandler handles readiness probes: ready once the catalog store
// answers and the dispatcher accepts jobs.
type ReadyHandler struct {
	DB         *sql.DB
	Dispatcher DispatcherStats // optional
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB == nil {
		http.Error(w, "database not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.DB.PingContext(ctx); err != nil {
		http.Error(w, "database not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if h.Dispatcher != nil && h.Dispatcher.Stats().Closed {
		http.Error(w, "dispatcher shut down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LiveHandler answers liveness probes.
type LiveHandler struct{}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
