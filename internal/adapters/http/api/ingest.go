package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/studypulse/internal/adapters/repository"
	service "github.com/okian/studypulse/internal/app"
	"github.com/okian/studypulse/pkg/logger"
)

const maxBodyBytes = 1 << 20

// IngestDependencies defines the write operations behind the ingestion routes.
type IngestDependencies interface {
	SubmitRating(ctx context.Context, studyID string, in service.RatingInput) (service.SubmitResult, error)
	MarkCompleted(ctx context.Context, studyID, participantID, completedAt string) (string, error)
}

// IngestHandler accepts ratings and completion marks.
type IngestHandler struct {
	deps   IngestDependencies
	logger logger.Logger
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(deps IngestDependencies, l logger.Logger) *IngestHandler {
	return &IngestHandler{deps: deps, logger: l}
}

// HandlePostRating handles POST /study/{studyId}/ratings.
func (h *IngestHandler) HandlePostRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rating"
	var req ratingRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err).Error())
		return
	}
	if req.Rating == nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest).Error()+": rating is required")
		return
	}

	res, err := h.deps.SubmitRating(r.Context(), chi.URLParam(r, "studyId"), req.input())
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure).Error())
		return
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable).Error())
		return
	default:
		h.logger.Error(r.Context(), "rating submission failed", logger.Error(Wrap(op, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: res.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: res.EventID})
}

// HandleComplete handles POST /study/{studyId}/participants/{participantId}/complete.
// The body is optional.
func (h *IngestHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_participant"
	var req completeRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err).Error())
		return
	}

	studyID := chi.URLParam(r, "studyId")
	participantID := chi.URLParam(r, "participantId")
	at, err := h.deps.MarkCompleted(r.Context(), studyID, participantID, req.CompletedAt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, completeResponse{
			Status:        "completed",
			StudyID:       studyID,
			ParticipantID: participantID,
			CompletedAt:   at,
		})
	case errors.Is(err, service.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable).Error())
	default:
		h.logger.Error(r.Context(), "mark completed failed", logger.Error(Wrap(op, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
