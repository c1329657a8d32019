package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/srg/ledctl/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeNotConnected    = "not_connected"
	ErrCodeConnectionError = "connection_failed"
	ErrCodeBluetoothOff    = "bluetooth_off"
	ErrCodeInternal        = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeDeviceError maps a device operation failure onto its HTTP status.
func writeDeviceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var (
		malformed *device.MalformedInputError
		notFound  *device.NotFoundError
		connErr   *device.ConnectionError
	)
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.As(err, &connErr):
		// Before ErrNotConnected: the last dial cause may itself be a disconnect
		return http.StatusBadGateway, ErrCodeConnectionError
	case errors.Is(err, device.ErrNotConnected):
		return http.StatusConflict, ErrCodeNotConnected
	case errors.Is(err, device.ErrBluetoothOff):
		return http.StatusServiceUnavailable, ErrCodeBluetoothOff
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
