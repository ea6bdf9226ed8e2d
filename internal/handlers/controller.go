package handlers

import (
	"log/slog"
	"net/http"

	"github.com/devmesh/backend/internal/models"
	"github.com/devmesh/backend/internal/services"
)

// ControllerHandler serves the password-authenticated /api endpoints. Every
// request carries the caller's username and password in its JSON body.
type ControllerHandler struct {
	Coordinator *services.Coordinator
	Logger      *slog.Logger
}

func NewControllerHandler(c *services.Coordinator, logger *slog.Logger) *ControllerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControllerHandler{Coordinator: c, Logger: logger}
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (b credentialsBody) credentials() services.Credentials {
	return services.Credentials{Username: b.Username, Password: b.Password}
}

type deviceBody struct {
	credentialsBody
	Device string `json:"device"`
}

// decodeDevice decodes a body that names a device and parses its id.
func decodeDevice(r *http.Request, body *deviceBody) (models.Pubkey, error) {
	if err := decodeJSON(r, body); err != nil {
		return models.Pubkey{}, err
	}
	return models.ParsePubkey(body.Device)
}

// --- POST /api/account/new ---

type createAccountRequest struct {
	Name          string `json:"name"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Owner         string `json:"owner"`
	OwnerPassword string `json:"owner_password"`
}

// CreateAccount handles POST /api/account/new.
func (h *ControllerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	acc, err := h.Coordinator.CreateAccount(r.Context(), services.NewAccount{
		Username:      req.Username,
		Password:      req.Password,
		Name:          req.Name,
		Owner:         req.Owner,
		OwnerPassword: req.OwnerPassword,
	})
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, acc)
}

// --- POST /api/account/name ---

// AccountName handles POST /api/account/name.
func (h *ControllerHandler) AccountName(w http.ResponseWriter, r *http.Request) {
	var req credentialsBody
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	name, err := h.Coordinator.AccountName(r.Context(), req.credentials())
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, name)
}

// --- POST /api/account/new_password ---

type changePasswordRequest struct {
	credentialsBody
	NewPassword string `json:"new_password"`
}

// ChangePassword handles POST /api/account/new_password.
func (h *ControllerHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.ChangePassword(r.Context(), req.credentials(), req.NewPassword); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, nil)
}

// --- POST /api/list_account ---

// ListAccounts handles POST /api/list_account.
func (h *ControllerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var req credentialsBody
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	list, err := h.Coordinator.ListAccounts(r.Context(), req.credentials())
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, list)
}

// --- POST /api/list_device ---

// ListDevices handles POST /api/list_device.
func (h *ControllerHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	var req credentialsBody
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	list, err := h.Coordinator.ListDevices(r.Context(), req.credentials())
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, list)
}

// --- POST /api/device/schema ---

// DeviceSchema handles POST /api/device/schema.
func (h *ControllerHandler) DeviceSchema(w http.ResponseWriter, r *http.Request) {
	var req deviceBody
	pk, err := decodeDevice(r, &req)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	schema, err := h.Coordinator.DeviceSchema(r.Context(), req.credentials(), pk)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, schema)
}

// --- POST /api/device/local_ip ---

// DeviceLocalAddress handles POST /api/device/local_ip.
func (h *ControllerHandler) DeviceLocalAddress(w http.ResponseWriter, r *http.Request) {
	var req deviceBody
	pk, err := decodeDevice(r, &req)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	addr, err := h.Coordinator.DeviceLocalAddress(r.Context(), req.credentials(), pk)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, addr)
}

// --- POST /api/device/title/new ---

type setTitleRequest struct {
	deviceBody
	Title string `json:"title"`
}

// SetDeviceTitle handles POST /api/device/title/new.
func (h *ControllerHandler) SetDeviceTitle(w http.ResponseWriter, r *http.Request) {
	var req setTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	pk, err := models.ParsePubkey(req.Device)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.SetDeviceTitle(r.Context(), req.credentials(), pk, req.Title); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, nil)
}

// --- POST /api/device/accept ---

// AcceptDevice handles POST /api/device/accept.
func (h *ControllerHandler) AcceptDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceBody
	pk, err := decodeDevice(r, &req)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.AcceptDevice(r.Context(), req.credentials(), pk); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, nil)
}

// --- POST /api/property/get ---

type getPropertyRequest struct {
	deviceBody
	Property string `json:"property"`
}

// GetProperty handles POST /api/property/get.
func (h *ControllerHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	var req getPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	pk, err := models.ParsePubkey(req.Device)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	v, err := h.Coordinator.GetProperty(r.Context(), req.credentials(), pk, req.Property)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, v)
}

// --- POST /api/property/set ---

type setPropertiesRequest struct {
	deviceBody
	Properties models.Properties `json:"properties"`
}

// SetProperties handles POST /api/property/set. The values are delivered the
// next time the device drains its mailbox.
func (h *ControllerHandler) SetProperties(w http.ResponseWriter, r *http.Request) {
	var req setPropertiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	pk, err := models.ParsePubkey(req.Device)
	if err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	if err := h.Coordinator.SetProperties(r.Context(), req.credentials(), pk, req.Properties); err != nil {
		writeFailure(w, r, h.Logger, err)
		return
	}
	writeSuccess(w, nil)
}
