package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PendingCounter reports how many devices have undelivered properties.
type PendingCounter interface {
	Pending() int
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	Store   Pinger
	Mailbox PendingCounter
	Logger  *slog.Logger
}

type healthResponse struct {
	Status         string `json:"status"`
	PendingDevices int    `json:"pending_devices"`
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", PendingDevices: h.Mailbox.Pending()}
	if err := h.Store.Ping(ctx); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("health check: store unreachable", "error", err)
		}
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
