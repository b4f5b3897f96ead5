package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  Pinger
	broker ConnectionChecker
}

// NewHealthHandler creates a new health handler. A nil broker means events
// are disabled and is not checked.
func NewHealthHandler(store Pinger, broker ConnectionChecker) *HealthHandler {
	return &HealthHandler{
		store:  store,
		broker: broker,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "storage unavailable",
		})
		return
	}
	if h.broker != nil && !h.broker.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
