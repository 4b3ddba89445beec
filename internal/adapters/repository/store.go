// Package repository holds study snapshots and the events appended to them.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/metrics"
)

// Backend names, also used as the "backend" metrics label.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Store provides read/write access to studies.
//
// Every read returns a deep copy, so callers may keep or mutate the result
// without coordinating with writers.
type Store interface {
	// Get returns a snapshot of the study. Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, studyID string) (model.Study, error)

	// List returns id, title and code of every study ordered by id.
	List(ctx context.Context) ([]model.StudyRef, error)

	// AppendRating adds a rating to a participant's history.
	// Returns ErrNotFound for an unknown study or participant and
	// ErrDuplicateEvent when the event id is already recorded.
	AppendRating(ctx context.Context, studyID, participantID string, ev model.RatingEvent) error

	// MarkCompleted records the participant's completion time and sets progress
	// to 100. The first completion wins; later calls are no-ops.
	MarkCompleted(ctx context.Context, studyID, participantID, completedAt string) error

	// Seed adds the studies the store does not hold yet and reports how many
	// were added. Existing studies are left untouched.
	Seed(ctx context.Context, studies []model.Study) (int, error)

	// Count returns the number of studies.
	Count(ctx context.Context) int

	// Close releases background goroutines and connections.
	Close() error
}

// observe records latency and failures of one store operation.
// Not-found and duplicate outcomes are answers, not failures.
func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDuplicateEvent) {
		metrics.RecordStoreError(backend, op)
	}
}

// appendRating applies a rating to an in-memory study value.
// Shared by the memory and redis backends.
func appendRating(s *model.Study, participantID string, ev model.RatingEvent) error {
	p := s.Participant(participantID)
	if p == nil {
		return participantNotFound(s.ID, participantID)
	}
	if ev.EventID != "" {
		for i := range p.Ratings {
			if p.Ratings[i].EventID == ev.EventID {
				return ErrDuplicateEvent
			}
		}
	}
	p.Ratings = append(p.Ratings, ev)
	return nil
}

// markCompleted applies a completion to an in-memory study value.
// It reports whether anything changed.
func markCompleted(s *model.Study, participantID, completedAt string) (bool, error) {
	p := s.Participant(participantID)
	if p == nil {
		return false, participantNotFound(s.ID, participantID)
	}
	if p.Completed() {
		return false, nil
	}
	p.CompletedAt = completedAt
	p.Progress = 100
	return true, nil
}
