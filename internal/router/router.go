package router

import (
	"net/http"

	"github.com/devmesh/backend/internal/handlers"
)

// New returns an http.Handler that serves the controller API under /api and
// the health check.
func New(ctrl *handlers.ControllerHandler, health *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()
	base := "/api"

	mux.HandleFunc(base+"/account/new", methodPOST(ctrl.CreateAccount))
	mux.HandleFunc(base+"/account/name", methodPOST(ctrl.AccountName))
	mux.HandleFunc(base+"/account/new_password", methodPOST(ctrl.ChangePassword))
	mux.HandleFunc(base+"/list_account", methodPOST(ctrl.ListAccounts))
	mux.HandleFunc(base+"/list_device", methodPOST(ctrl.ListDevices))

	mux.HandleFunc(base+"/device/schema", methodPOST(ctrl.DeviceSchema))
	mux.HandleFunc(base+"/device/local_ip", methodPOST(ctrl.DeviceLocalAddress))
	mux.HandleFunc(base+"/device/title/new", methodPOST(ctrl.SetDeviceTitle))
	mux.HandleFunc(base+"/device/accept", methodPOST(ctrl.AcceptDevice))

	mux.HandleFunc(base+"/property/get", methodPOST(ctrl.GetProperty))
	mux.HandleFunc(base+"/property/set", methodPOST(ctrl.SetProperties))

	mux.HandleFunc("/healthz", methodGET(health.Health))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
