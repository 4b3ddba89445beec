// Package service wires the study store, the analytics engine and the rating
// ingestion pipeline into the operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/studypulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/studypulse/internal/adapters/mq/worker"
	"github.com/okian/studypulse/internal/adapters/repository"
	"github.com/okian/studypulse/internal/domain/analytics"
	"github.com/okian/studypulse/internal/domain/dedupe"
	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/logger"
	"github.com/okian/studypulse/pkg/metrics"
)

// Service implements the API dependencies for the study monitor.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	engine  *analytics.Engine
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool

	// Configuration
	workerCount            int
	queueSize              int
	dedupeSize             int
	ratingMin              float64
	ratingMax              float64
	refreshIntervalSeconds int
	defaultWindowDays      int
	seed                   []model.Study
	now                    func() time.Time

	// State
	started   bool
	ownsStore bool
	startedAt time.Time

	logger logger.Logger
}

// RatingInput is an incoming rating submission before validation.
type RatingInput struct {
	EventID       string
	ParticipantID string
	ArtifactID    string
	ArtifactName  string
	Rating        float64
	SubmittedAt   string
}

// SubmitResult reports what happened to an accepted submission.
type SubmitResult struct {
	EventID   string
	Duplicate bool
}

// Stats is the operational snapshot served by GET /stats.
type Stats struct {
	Started        bool             `json:"started"`
	UptimeSeconds  int64            `json:"uptimeSeconds"`
	Studies        int              `json:"studies"`
	WorkerCount    int              `json:"workerCount"`
	QueueLength    int              `json:"queueLength"`
	QueueCapacity  int              `json:"queueCapacity"`
	DedupeEntries  int              `json:"dedupeEntries"`
	DedupeCapacity int              `json:"dedupeCapacity"`
	Ingestion      workerpool.Stats `json:"ingestion"`
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:            runtime.NumCPU() * 2,
		queueSize:              10_000,
		dedupeSize:             100_000,
		ratingMin:              1,
		ratingMax:              5,
		refreshIntervalSeconds: analytics.DefaultRefreshIntervalSeconds,
		defaultWindowDays:      analytics.DefaultWindowDays,
		now:                    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
// Without WithStore an in-memory store is used.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting study monitor service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
		s.logger.Info(ctx, "using memory store")
	}
	if len(s.seed) > 0 {
		added, err := s.store.Seed(ctx, s.seed)
		if err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
		s.logger.Info(ctx, "store seeded",
			logger.Int("studies", len(s.seed)),
			logger.Int("added", added),
		)
	}
	metrics.UpdateStudyCount(s.store.Count(ctx))

	s.engine = analytics.NewEngine(
		analytics.WithRefreshIntervalSeconds(s.refreshIntervalSeconds),
		analytics.WithDefaultWindowDays(s.defaultWindowDays),
		analytics.WithClock(s.now),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	// A store failure forgets the key so the client's retry is not
	// swallowed as a duplicate.
	deduper := s.deduper
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store,
		workerpool.WithOnFailure(func(ctx context.Context, sub eventqueue.Submission) {
			deduper.Unrecord(ctx, dedupe.Key(sub.StudyID, sub.Event.EventID))
		}),
	)
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "study monitor service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the ingestion pipeline and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping study monitor service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if s.ownsStore {
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(ctx, "study monitor service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// collaborators is the set of components one call works against.
type collaborators struct {
	store   repository.Store
	engine  *analytics.Engine
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
}

// components returns the collaborators together with the started flag,
// read under one lock so Stop or a restart cannot swap them out in between.
func (s *Service) components() (collaborators, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collaborators{
		store:   s.store,
		engine:  s.engine,
		deduper: s.deduper,
		queue:   s.queue,
	}, s.started
}

// normalizeTime validates an RFC 3339 timestamp and rewrites it in UTC, so
// the date prefix of every stored event is its UTC day. Empty means now.
func (s *Service) normalizeTime(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now().UTC().Format(time.RFC3339Nano), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

// StudyAnalytics loads a fresh snapshot of the study and builds its dashboard
// payload. Errors wrap repository.ErrNotFound, analytics.ErrInvalidFilter or
// analytics.ErrInvertedRange; anything else is an internal failure.
func (s *Service) StudyAnalytics(ctx context.Context, studyID string, q analytics.Query) (*analytics.Response, error) {
	c, ok := s.components()
	if !ok {
		return nil, ErrNotStarted
	}
	start := time.Now()
	resp, err := c.buildAnalytics(ctx, studyID, q)
	metrics.RecordAnalyticsBuildLatency(float64(time.Since(start).Microseconds()) / 1000)

	switch {
	case err == nil:
		metrics.RecordAnalyticsBuild(metrics.OutcomeOK)
		metrics.UpdateLastBuild(resp.Summary.ActiveParticipants, resp.Summary.SubmissionsCount, resp.Summary.CompletedParticipants)
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordAnalyticsBuild(metrics.OutcomeNotFound)
	case errors.Is(err, analytics.ErrInvalidFilter), errors.Is(err, analytics.ErrInvertedRange):
		metrics.RecordAnalyticsBuild(metrics.OutcomeBadRequest)
	default:
		metrics.RecordAnalyticsBuild(metrics.OutcomeFailed)
	}
	return resp, err
}

func (c collaborators) buildAnalytics(ctx context.Context, studyID string, q analytics.Query) (*analytics.Response, error) {
	study, err := c.store.Get(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return c.engine.Build(&study, q)
}

// ListStudies returns the studies known to the store.
func (s *Service) ListStudies(ctx context.Context) ([]model.StudyRef, error) {
	c, ok := s.components()
	if !ok {
		return nil, ErrNotStarted
	}
	return c.store.List(ctx)
}

// SubmitRating validates a rating and queues it for the workers.
// Resubmitting an event id that is still remembered reports Duplicate and
// queues nothing.
func (s *Service) SubmitRating(ctx context.Context, studyID string, in RatingInput) (SubmitResult, error) {
	c, ok := s.components()
	if !ok {
		return SubmitResult{}, ErrNotStarted
	}
	ev, err := s.normalizeRating(in)
	if err != nil {
		metrics.RecordRatingRejected("validation")
		return SubmitResult{}, err
	}
	sub := model.Submission{
		StudyID:       strings.TrimSpace(studyID),
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		Event:         ev,
	}
	if sub.StudyID == "" {
		metrics.RecordRatingRejected("validation")
		return SubmitResult{}, fmt.Errorf("%w: study id is required", ErrInvalidSubmission)
	}

	key := dedupe.Key(sub.StudyID, ev.EventID)
	if c.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordRatingDuplicate()
		s.logger.Debug(ctx, "duplicate submission skipped",
			logger.String("study", sub.StudyID),
			logger.String("eventID", ev.EventID),
		)
		return SubmitResult{EventID: ev.EventID, Duplicate: true}, nil
	}

	if err := c.queue.Enqueue(ctx, sub); err != nil {
		c.deduper.Unrecord(ctx, key)
		switch {
		case errors.Is(err, eventqueue.ErrFull):
			return SubmitResult{}, ErrQueueFull
		case errors.Is(err, eventqueue.ErrClosed):
			return SubmitResult{}, ErrUnavailable
		default:
			return SubmitResult{}, err
		}
	}
	return SubmitResult{EventID: ev.EventID}, nil
}

func (s *Service) normalizeRating(in RatingInput) (model.RatingEvent, error) {
	ev := model.RatingEvent{
		EventID:      strings.TrimSpace(in.EventID),
		ArtifactID:   strings.TrimSpace(in.ArtifactID),
		ArtifactName: strings.TrimSpace(in.ArtifactName),
		Rating:       in.Rating,
		SubmittedAt:  strings.TrimSpace(in.SubmittedAt),
	}

	switch {
	case strings.TrimSpace(in.ParticipantID) == "":
		return ev, fmt.Errorf("%w: participantId is required", ErrInvalidSubmission)
	case ev.ArtifactID == "":
		return ev, fmt.Errorf("%w: artifactId is required", ErrInvalidSubmission)
	case math.IsNaN(ev.Rating) || math.IsInf(ev.Rating, 0):
		return ev, fmt.Errorf("%w: rating must be a finite number", ErrInvalidSubmission)
	case ev.Rating < s.ratingMin || ev.Rating > s.ratingMax:
		return ev, fmt.Errorf("%w: rating must be between %g and %g", ErrInvalidSubmission, s.ratingMin, s.ratingMax)
	}

	at, err := s.normalizeTime(ev.SubmittedAt)
	if err != nil {
		return ev, fmt.Errorf("%w: submittedAt must be an RFC 3339 timestamp", ErrInvalidSubmission)
	}
	ev.SubmittedAt = at
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	return ev, nil
}

// MarkCompleted records that a participant finished the study. An empty
// completedAt means now. Completing twice keeps the first time.
func (s *Service) MarkCompleted(ctx context.Context, studyID, participantID, completedAt string) (string, error) {
	c, ok := s.components()
	if !ok {
		return "", ErrNotStarted
	}
	completedAt, err := s.normalizeTime(completedAt)
	if err != nil {
		return "", fmt.Errorf("%w: completedAt must be an RFC 3339 timestamp", ErrInvalidSubmission)
	}

	if err := c.store.MarkCompleted(ctx, studyID, participantID, completedAt); err != nil {
		return "", err
	}
	metrics.RecordCompletionMarked()
	s.logger.Info(ctx, "participant completed",
		logger.String("study", studyID),
		logger.String("participant", participantID),
	)
	return completedAt, nil
}

// GetStats returns service statistics for monitoring and refreshes the
// gauges that are only sampled on demand.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	stats := Stats{
		Started:        s.started,
		WorkerCount:    s.workerCount,
		QueueCapacity:  s.queueSize,
		DedupeCapacity: s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	stats.UptimeSeconds = int64(s.now().Sub(s.startedAt).Seconds())
	stats.Studies = s.store.Count(ctx)
	stats.QueueLength = s.queue.Len(ctx)
	stats.DedupeEntries = s.deduper.Size()
	stats.Ingestion = s.pool.Stats()

	metrics.UpdateStudyCount(stats.Studies)
	return stats
}

// Ready reports whether the service accepts traffic.
func (s *Service) Ready() bool {
	return s.running()
}
