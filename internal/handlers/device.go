package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/devmesh/backend/internal/models"
	"github.com/devmesh/backend/internal/services"
)

// DeviceHandler serves the /device endpoints called by devices themselves.
// A device is identified by its base58 id alone; there is no password.
type DeviceHandler struct {
	Coordinator *services.Coordinator
	Logger      *slog.Logger
}

func NewDeviceHandler(c *services.Coordinator, logger *slog.Logger) *DeviceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceHandler{Coordinator: c, Logger: logger}
}

// --- POST /device/new ---

type registerDeviceRequest struct {
	Pubkey   string          `json:"pubkey"`
	Username string          `json:"username"`
	Title    string          `json:"title"`
	LocalIP  string          `json:"local_ip"`
	Schema   json.RawMessage `json:"schema"`
}

// Register handles POST /device/new.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	pk, err := models.ParsePubkey(req.Pubkey)
	if err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.RegisterDevice(r.Context(), pk, req.Username, req.Title, req.LocalIP, req.Schema); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- POST /device/{device}/schema ---

// ReplaceSchema handles POST /device/{device}/schema.
func (h *DeviceHandler) ReplaceSchema(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.pathDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		Schema json.RawMessage `json:"schema"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.ReplaceSchema(r.Context(), pk, req.Schema); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- POST /device/{device}/local_ip ---

// SetLocalAddress handles POST /device/{device}/local_ip.
func (h *DeviceHandler) SetLocalAddress(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.pathDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		IP string `json:"ip"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.SetLocalAddress(r.Context(), pk, req.IP); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- POST /device/{device}/data/set ---

// ReportProperties handles POST /device/{device}/data/set.
func (h *DeviceHandler) ReportProperties(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.pathDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		Properties models.Properties `json:"properties"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.ReportProperties(r.Context(), pk, req.Properties); err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- POST /device/{device}/data/wait ---

// DrainPending handles POST /device/{device}/data/wait. It answers at once
// with whatever is queued for the device, or {} when nothing is.
func (h *DeviceHandler) DrainPending(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.pathDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Coordinator.DrainPending(pk))
}

func (h *DeviceHandler) pathDevice(w http.ResponseWriter, r *http.Request) (models.Pubkey, bool) {
	pk, err := models.ParsePubkey(r.PathValue("device"))
	if err != nil {
		writeDeviceError(w, r, h.Logger, err)
		return models.Pubkey{}, false
	}
	return pk, true
}
