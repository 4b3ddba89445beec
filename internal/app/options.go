package service

import (
	"time"

	"github.com/okian/studypulse/internal/adapters/repository"
	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the study store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSeed sets studies added to the store on Start when missing.
func WithSeed(studies []model.Study) Option {
	return func(s *Service) {
		s.seed = studies
	}
}

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the capacity of the event id deduper.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRatingScale sets the inclusive range of accepted rating values.
func WithRatingScale(minRating, maxRating float64) Option {
	return func(s *Service) {
		if minRating < maxRating {
			s.ratingMin = minRating
			s.ratingMax = maxRating
		}
	}
}

// WithRefreshIntervalSeconds sets the polling hint included in analytics.
func WithRefreshIntervalSeconds(seconds int) Option {
	return func(s *Service) {
		if seconds > 0 {
			s.refreshIntervalSeconds = seconds
		}
	}
}

// WithDefaultWindowDays sets how far back a missing from reaches.
func WithDefaultWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultWindowDays = days
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
