package models

import (
	"encoding/json"
	"net/http"
)

// Error messages shown to API clients.
const (
	MessageStationsFailed = "Failed to fetch station data"
	MessageMissingFields  = "Missing fields"
	MessageInvalidBody    = "Invalid request body"
	MessageEmailFailed    = "Failed to send email"
	MessageNotFound       = "Not found"
	MessageInternal       = "Internal server error"
	MessageJSONRequired   = "Content-Type must be application/json"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	// Status is the HTTP status code. It is not serialized.
	Status int `json:"-"`

	// Error is a short, human-readable summary.
	Error string `json:"error"`

	// Detail explains this occurrence, e.g. the upstream failure.
	Detail string `json:"detail,omitempty"`

	// TraceID is the request identifier for debugging.
	TraceID string `json:"traceId,omitempty"`
}

// NewError creates an ErrorResponse.
func NewError(status int, message, traceID string) *ErrorResponse {
	return &ErrorResponse{
		Status:  status,
		Error:   message,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message.
func (e *ErrorResponse) WithDetail(detail string) *ErrorResponse {
	e.Detail = detail
	return e
}

// Write writes the error as JSON to the ResponseWriter.
func (e *ErrorResponse) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.TraceID != "" {
		w.Header().Set("X-Request-Id", e.TraceID)
	}
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(traceID, message string) *ErrorResponse {
	return NewError(http.StatusBadRequest, message, traceID)
}

// NewNotFound creates a 404 Not Found error.
func NewNotFound(traceID string) *ErrorResponse {
	return NewError(http.StatusNotFound, MessageNotFound, traceID)
}

// NewUnsupportedMediaType creates a 415 Unsupported Media Type error.
func NewUnsupportedMediaType(traceID string) *ErrorResponse {
	return NewError(http.StatusUnsupportedMediaType, MessageJSONRequired, traceID)
}

// NewInternalError creates a 500 Internal Server Error.
func NewInternalError(traceID, message string) *ErrorResponse {
	return NewError(http.StatusInternalServerError, message, traceID)
}
