package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/junrei/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	sessions func() int
	timeout  time.Duration
}

// NewHealthHandler creates a health handler. sessions reports the number of
// live dialogue sessions and may be nil.
func NewHealthHandler(repo store.Repository, sessions func() int) *HealthHandler {
	return &HealthHandler{repo: repo, sessions: sessions, timeout: defaultHealthCheckTimeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}
	if h.sessions != nil {
		status["active_sessions"] = h.sessions()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route. The bare /health path is
// left to the router's heartbeat middleware.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
