// Package api provides HTTP handlers for the junrei API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/junrei/internal/catalog"
	"github.com/ashureev/junrei/internal/progression"
	"github.com/ashureev/junrei/internal/realtime"
	"github.com/ashureev/junrei/internal/store"
)

// maxRequestBodySize bounds JSON request bodies (64KB).
const maxRequestBodySize = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo        store.Repository
	hub         *realtime.Hub
	catalog     *catalog.Catalog
	progression progression.Config
	limiter     *RateLimiter
}

// NewHandler creates a new Handler with common dependencies. limiter may be nil
// to disable rate limiting.
func NewHandler(repo store.Repository, hub *realtime.Hub, cat *catalog.Catalog, prog progression.Config, limiter *RateLimiter) *Handler {
	return &Handler{
		repo:        repo,
		hub:         hub,
		catalog:     cat,
		progression: prog,
		limiter:     limiter,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a bounded JSON body into v. It writes the error response
// and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// allow applies the per-user rate limit. It writes the error response and
// returns false when the user is throttled.
func (h *Handler) allow(w http.ResponseWriter, userID string) bool {
	if h.limiter == nil || h.limiter.Allow(userID) {
		return true
	}
	Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}
