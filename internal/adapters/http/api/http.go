// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/okian/studypulse/internal/adapters/http/swagger"
	service "github.com/okian/studypulse/internal/app"
	"github.com/okian/studypulse/pkg/logger"
)

const defaultRequestTimeout = 15 * time.Second

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StudyDependencies
	IngestDependencies
	StatsProvider
}

// Server wires HTTP routes for the study monitor API.
type Server struct {
	studyHandler  *StudyHandler
	ingestHandler *IngestHandler
	healthHandler *HealthHandler
	statsHandler  *StatsHandler

	allowedOrigins []string
	requestTimeout time.Duration
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		allowedOrigins: []string{"*"},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.studyHandler = NewStudyHandler(deps, s.logger)
	s.ingestHandler = NewIngestHandler(deps, s.logger)
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	return s
}

// Router builds the full handler: middleware stack, API routes and docs.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	s.Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}

// Register attaches the API routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Get("/studies", s.studyHandler.HandleListStudies)

	r.Route("/study/{studyId}", func(r chi.Router) {
		r.Get("/", s.studyHandler.HandleGetStudy)
		r.Post("/ratings", s.ingestHandler.HandlePostRating)
		r.Post("/participants/{participantId}/complete", s.ingestHandler.HandleComplete)
	})
}

// ratingRequest mirrors the OpenAPI schema for POST /study/{studyId}/ratings.
type ratingRequest struct {
	EventID       string   `json:"eventId"`
	ParticipantID string   `json:"participantId"`
	ArtifactID    string   `json:"artifactId"`
	ArtifactName  string   `json:"artifactName"`
	Rating        *float64 `json:"rating"`
	SubmittedAt   string   `json:"submittedAt"`
}

func (req ratingRequest) input() service.RatingInput {
	in := service.RatingInput{
		EventID:       req.EventID,
		ParticipantID: req.ParticipantID,
		ArtifactID:    req.ArtifactID,
		ArtifactName:  req.ArtifactName,
		SubmittedAt:   req.SubmittedAt,
	}
	if req.Rating != nil {
		in.Rating = *req.Rating
	}
	return in
}

type completeRequest struct {
	CompletedAt string `json:"completedAt"`
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"eventId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type completeResponse struct {
	Status        string `json:"status"`
	StudyID       string `json:"studyId"`
	ParticipantID string `json:"participantId"`
	CompletedAt   string `json:"completedAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
