package worker

import (
	"context"

	"github.com/okian/studypulse/internal/adapters/mq/queue"
	"github.com/okian/studypulse/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnFailure registers fn to run when a submission could not be stored,
// e.g. to forget its idempotency key so the client may retry.
func WithOnFailure(fn func(context.Context, queue.Submission)) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}

func withCounters(c *counters) Option {
	return func(w *InMemoryWorker) {
		if c != nil {
			w.counters = c
		}
	}
}
