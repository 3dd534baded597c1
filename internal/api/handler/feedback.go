package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/belfastbikes/belfastbikes/internal/api/models"
	"github.com/belfastbikes/belfastbikes/internal/api/response"
	"github.com/belfastbikes/belfastbikes/internal/feedback"
)

// maxFeedbackBody caps the size of a feedback request body.
const maxFeedbackBody = 16 << 10

// FeedbackService relays station issue reports.
type FeedbackService interface {
	Submit(ctx context.Context, fb feedback.Feedback) error
}

// FeedbackHandler handles the feedback endpoint.
type FeedbackHandler struct {
	feedback FeedbackService
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(svc FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: svc}
}

// Submit handles POST /api/feedback.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var input feedback.Feedback
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedbackBody)).Decode(&input); err != nil {
		response.BadRequest(w, r, models.MessageInvalidBody)
		return
	}

	err := h.feedback.Submit(r.Context(), input)
	switch {
	case err == nil:
		response.OK(w, r)
	case errors.Is(err, feedback.ErrMissingFields):
		response.BadRequest(w, r, models.MessageMissingFields)
	default:
		// The service logs the send failure.
		response.InternalError(w, r, models.MessageEmailFailed, "")
	}
}
