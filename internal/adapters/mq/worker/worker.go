// Package worker applies queued rating submissions to the study store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/studypulse/internal/adapters/mq/queue"
	"github.com/okian/studypulse/internal/adapters/repository"
	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/logger"
	"github.com/okian/studypulse/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Applier persists a rating. repository.Store satisfies it.
type Applier interface {
	AppendRating(ctx context.Context, studyID, participantID string, ev model.RatingEvent) error
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Submission
}

// Stats counts submission outcomes since the pool started.
type Stats struct {
	Applied    int64 `json:"applied"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Failed     int64 `json:"failed"`
}

type counters struct {
	applied    atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	failed     atomic.Int64
}

// Worker processes submissions until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	applier   Applier
	name      string
	counters  *counters
	onFailure func(context.Context, queue.Submission)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "worker",
		counters: &counters{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case s, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, s); err != nil {
				w.logger.Error(ctx, "error applying submission", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process applies one submission. Duplicates and unknown targets are expected
// outcomes and only a store failure is returned as an error.
func (w *InMemoryWorker) process(ctx context.Context, s queue.Submission) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	metrics.RecordQueueDequeue()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	err := w.applier.AppendRating(ctx, s.StudyID, s.ParticipantID, s.Event)
	switch {
	case err == nil:
		w.counters.applied.Add(1)
		metrics.RecordRatingIngested()
		return nil

	case errors.Is(err, repository.ErrDuplicateEvent):
		w.counters.duplicates.Add(1)
		metrics.RecordRatingDuplicate()
		w.logger.Debug(ctx, "duplicate rating ignored",
			logger.String("study", s.StudyID),
			logger.String("eventID", s.Event.EventID),
		)
		return nil

	case errors.Is(err, repository.ErrNotFound):
		w.counters.rejected.Add(1)
		metrics.RecordRatingRejected("unknown_target")
		w.logger.Warn(ctx, "rating for unknown study or participant dropped",
			logger.String("study", s.StudyID),
			logger.String("participant", s.ParticipantID),
			logger.Error(err),
		)
		return nil

	default:
		if w.onFailure != nil {
			w.onFailure(ctx, s)
		}
		w.counters.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		metrics.RecordErrorByType("store_error", "high")
		return fmt.Errorf("apply rating %s for study %s: %w", s.Event.EventID, s.StudyID, err)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *counters
	wg       sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a worker pool. opts apply to every worker.
func NewPool(workerCount int, q Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counters: &counters{},
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		workerOpts = append(workerOpts, withCounters(p.counters))
		p.workers[i] = NewInMemoryWorker(q, applier, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stats returns a snapshot of the outcome counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Applied:    p.counters.applied.Load(),
		Duplicates: p.counters.duplicates.Load(),
		Rejected:   p.counters.rejected.Load(),
		Failed:     p.counters.failed.Load(),
	}
}

// Shutdown closes the queue and lets workers drain what is buffered. Workers
// still busy when ctx (or the pool timeout) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-drained:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-shutdownCtx.Done():
	}

	p.logger.Warn(ctx, "worker pool drain timed out, stopping workers")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	for i, w := range p.workers {
		if err := w.Shutdown(stopCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
}
