package main

import (
	"net/http"

	"github.com/devmesh/backend/internal/handlers"
)

// RegisterDeviceRoutes adds the device-facing endpoints to the given mux.
// Devices identify themselves by the {device} path segment; no credentials.
func RegisterDeviceRoutes(mux *http.ServeMux, dh *handlers.DeviceHandler) {
	// POST /device/new: register or update, linking the device to an account
	mux.HandleFunc("POST /device/new", dh.Register)

	mux.HandleFunc("POST /device/{device}/schema", dh.ReplaceSchema)
	mux.HandleFunc("POST /device/{device}/local_ip", dh.SetLocalAddress)

	// POST /device/{device}/data/set: device reports its current values
	mux.HandleFunc("POST /device/{device}/data/set", dh.ReportProperties)

	// POST /device/{device}/data/wait: drain queued updates, never blocks
	mux.HandleFunc("POST /device/{device}/data/wait", dh.DrainPending)
}
