package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "credreg/pkg/domain-errors"
)

// ErrorResponse is the JSON envelope for every rejected registry call.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates transport-agnostic domain errors into HTTP responses.
// Non-domain errors are reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:       DomainCodeToHTTPCode(domainErr.Code),
			Description: domainErr.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
//
// Unauthorized means the caller was identified but does not hold the required
// role, so it maps to 403. Missing or invalid tokens are answered with 401 by
// the caller middleware before any service runs.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvalidExpiry, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeAlreadyExists, dErrors.CodeDuplicateAttestation,
		dErrors.CodeAlreadyRevoked, dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeNotAccredited:
		return http.StatusPreconditionFailed
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode returns the "error" string of the JSON envelope.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeTimeout:
		return "registry_timeout"
	case dErrors.CodeNotFound, dErrors.CodeAlreadyExists, dErrors.CodeUnauthorized,
		dErrors.CodeNotAccredited, dErrors.CodeDuplicateAttestation, dErrors.CodeInvalidExpiry,
		dErrors.CodeAlreadyRevoked, dErrors.CodeInvalidState:
		return string(code)
	default:
		return "internal_error"
	}
}
