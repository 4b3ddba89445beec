package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/studypulse/internal/adapters/repository"
	service "github.com/okian/studypulse/internal/app"
	"github.com/okian/studypulse/internal/domain/analytics"
	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/logger"
)

// Client-facing analytics messages.
const (
	msgInvalidFilter  = "Invalid date filter provided"
	msgInvertedRange  = "The start date must be before the end date"
	msgAnalyticsError = "Unable to build study analytics right now"
	msgStudyNotFound  = "Study %s was not found"
)

// StudyDependencies defines the read operations behind the study routes.
type StudyDependencies interface {
	StudyAnalytics(ctx context.Context, studyID string, q analytics.Query) (*analytics.Response, error)
	ListStudies(ctx context.Context) ([]model.StudyRef, error)
}

// StudyHandler serves study analytics and the study list.
type StudyHandler struct {
	deps   StudyDependencies
	logger logger.Logger
}

// NewStudyHandler creates a new study handler.
func NewStudyHandler(deps StudyDependencies, l logger.Logger) *StudyHandler {
	return &StudyHandler{deps: deps, logger: l}
}

// HandleGetStudy handles GET /study/{studyId}.
func (h *StudyHandler) HandleGetStudy(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_study"
	studyID := chi.URLParam(r, "studyId")

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error(r.Context(), "analytics build panicked",
				logger.String("op", op),
				logger.String("study", studyID),
				logger.Any("panic", rec),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", msgAnalyticsError)
		}
	}()

	q := r.URL.Query()
	resp, err := h.deps.StudyAnalytics(r.Context(), studyID, analytics.Query{
		From:          q.Get("from"),
		To:            q.Get("to"),
		ParticipantID: q.Get("participantId"),
	})
	if err != nil {
		h.writeAnalyticsError(r.Context(), w, studyID, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StudyHandler) writeAnalyticsError(ctx context.Context, w http.ResponseWriter, studyID string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf(msgStudyNotFound, studyID))
	case errors.Is(err, analytics.ErrInvertedRange):
		writeError(w, http.StatusBadRequest, "inverted_range", msgInvertedRange)
	case errors.Is(err, analytics.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "invalid_filter", msgInvalidFilter)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", msgAnalyticsError)
	default:
		h.logger.Error(ctx, "analytics build failed",
			logger.String("study", studyID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", msgAnalyticsError)
	}
}

type studiesResponse struct {
	Studies []model.StudyRef `json:"studies"`
}

// HandleListStudies handles GET /studies.
func (h *StudyHandler) HandleListStudies(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_studies"
	refs, err := h.deps.ListStudies(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "list studies failed", logger.Error(WrapKind(op, ErrInternal, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", "Unable to list studies right now")
		return
	}
	if refs == nil {
		refs = []model.StudyRef{}
	}
	writeJSON(w, http.StatusOK, studiesResponse{Studies: refs})
}
