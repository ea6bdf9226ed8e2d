package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/devmesh/backend/internal/models"
)

// envelope is the body of every controller API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload"`
}

// errorKinds maps each error kind to its status and a client-facing message.
// Messages are fixed so responses never echo usernames or device ids.
var errorKinds = []struct {
	err     error
	status  int
	message string
}{
	{models.ErrInputMalformed, http.StatusBadRequest, "Invalid input"},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{models.ErrAccountNotFound, http.StatusNotFound, "Account not found"},
	{models.ErrDeviceNotFound, http.StatusNotFound, "Device not found"},
	{models.ErrPropertyNotFound, http.StatusNotFound, "Property not found"},
	{models.ErrAlreadyExists, http.StatusConflict, "Already exists"},
	{models.ErrStoreUnavailable, http.StatusServiceUnavailable, "Service unavailable"},
}

// statusFor returns the HTTP status and message for err.
func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.message
		}
	}
	return http.StatusInternalServerError, "Internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Payload: payload})
}

// writeFailure writes the envelope for err. Unexpected errors are logged;
// expected kinds are client mistakes and only logged at debug level.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	logFailure(r, logger, status, err)
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeDeviceError is the device API counterpart of writeFailure.
func writeDeviceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	logFailure(r, logger, status, err)
	writeJSON(w, status, map[string]string{"error": msg})
}

func logFailure(r *http.Request, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
		return
	}
	logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
}

// decodeJSON decodes the request body into v. The body must hold exactly one
// JSON value. Any decode failure, including an oversized body, is reported as
// malformed input.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInputMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", models.ErrInputMalformed)
	}
	return nil
}
