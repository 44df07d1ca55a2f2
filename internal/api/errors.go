package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/homehub/hubctl/internal/command"
)

// ErrBadRequest marks malformed request bodies.
var ErrBadRequest = errors.New("BAD_REQUEST")

// APIError carries the HTTP mapping of a failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// errorMappings is checked in order.
var errorMappings = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST", "Malformed or missing required parameter"},
	{command.ErrAdmissionRejected, http.StatusConflict, "BUSY", "An activity change is already in progress"},
	{command.ErrConfiguration, http.StatusNotFound, "NOT_CONFIGURED", "Command is not configured"},
	{command.ErrNetwork, http.StatusServiceUnavailable, "UNAVAILABLE", "Hub is not reachable"},
	{command.ErrTimeout, http.StatusGatewayTimeout, "TIMEOUT", "Hub did not answer in time"},
	{command.ErrRejected, http.StatusBadGateway, "HUB_REJECTED", "Hub rejected the command"},
	{command.ErrStopped, http.StatusServiceUnavailable, "UNAVAILABLE", "Orchestrator is stopped"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out"},
	{context.Canceled, 499, "CANCELLED", "Request cancelled"},
}

// ToAPIError maps err to an APIError. Unknown errors become INTERNAL.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return &APIError{Status: m.status, Code: m.code, Message: m.message}
		}
	}
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "Internal server error"}
}

// writeErr writes err using its mapping. The original error text goes into
// details so operators can see the hub's answer.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := ToAPIError(err)
	var details any
	if err != nil && err.Error() != apiErr.Error() {
		details = map[string]string{"error": err.Error()}
	}
	WriteError(w, r, apiErr.Status, apiErr.Code, apiErr.Message, details)
}
