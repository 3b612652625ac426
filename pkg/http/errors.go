package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aegis-sec/aegis/internal/models"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteServiceError maps the service-layer sentinel errors onto HTTP
// responses. Credential and code failures deliberately collapse into generic
// messages so response bodies leak nothing about accounts or codes.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, models.ErrAccountLocked):
		WriteForbidden(w, "account is temporarily locked")
	case errors.Is(err, models.ErrAddressBlocked):
		WriteForbidden(w, "request refused")
	case errors.Is(err, models.ErrCodeInvalid):
		WriteBadRequest(w, "code is invalid or expired")
	case errors.Is(err, models.ErrPhoneInUse):
		WriteConflict(w, "phone number cannot be verified")
	case errors.Is(err, models.ErrDeliveryFailed):
		WriteError(w, http.StatusBadGateway, "delivery_failed", "could not deliver code")
	case errors.Is(err, models.ErrRateLimitExceeded):
		WriteTooManyRequests(w, "too many requests")
	case errors.Is(err, models.ErrNotFound):
		WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrConflict):
		WriteConflict(w, "resource already exists")
	case errors.Is(err, models.ErrBadRequest):
		WriteBadRequest(w, "invalid request")
	case errors.Is(err, models.ErrUnauthorized):
		WriteUnauthorized(w, "unauthorized")
	case errors.Is(err, models.ErrForbidden):
		WriteForbidden(w, "forbidden")
	default:
		WriteInternalError(w, "internal server error")
	}
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
