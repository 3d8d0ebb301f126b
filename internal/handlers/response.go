package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/processors"
	"github.com/example/ppttools/internal/tool"
	"github.com/example/ppttools/internal/workspace"
)

// sendJSONResponse sends a JSON response to the client
func sendJSONResponse(w http.ResponseWriter, response interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// sendJSONData sends a successful envelope carrying data
func sendJSONData(w http.ResponseWriter, message string, data interface{}) {
	sendJSONResponse(w, models.APIResponse{Success: true, Message: message, Data: data}, http.StatusOK)
}

// sendJSONError sends a JSON error response to the client
func sendJSONError(w http.ResponseWriter, message string, status int) {
	sendJSONResponse(w, models.APIResponse{Success: false, Error: message}, status)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tool.ErrBusy), errors.Is(err, tool.ErrNotIdle), errors.Is(err, tool.ErrNoResult):
		return http.StatusConflict
	case errors.Is(err, tool.ErrClosed), errors.Is(err, workspace.ErrClosed), errors.Is(err, lease.ErrNotLive):
		return http.StatusGone
	case errors.Is(err, processors.ErrQueueFull), errors.Is(err, processors.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, lease.ErrNoURL):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// sendDomainError writes err with the status statusFor picks
func sendDomainError(w http.ResponseWriter, err error) {
	sendJSONError(w, err.Error(), statusFor(err))
}

func newClientID() string {
	return uuid.NewString()
}
