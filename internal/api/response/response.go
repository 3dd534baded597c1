// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/belfastbikes/belfastbikes/internal/api/middleware"
	"github.com/belfastbikes/belfastbikes/internal/api/models"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes an error response.
func Error(w http.ResponseWriter, _ *http.Request, e *models.ErrorResponse) {
	e.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadRequest(traceID, message))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNotFound(traceID))
}

// InternalError writes a 500 Internal Server Error response. detail may be empty.
func InternalError(w http.ResponseWriter, r *http.Request, message, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewInternalError(traceID, message).WithDetail(detail))
}

// OK writes {"ok":true}.
func OK(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, models.OKResponse{OK: true})
}
