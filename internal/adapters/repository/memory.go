package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/pkg/metrics"
)

// MemoryStore is a map-backed Store guarded by a single RWMutex.
// Writes are short and reads copy, so one lock is enough for dashboard traffic.
type MemoryStore struct {
	mu      sync.RWMutex
	studies map[string]*model.Study

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an empty memory store and starts its metrics updater.
// The updater stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		studies:               make(map[string]*model.Study),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStudyCount(s.Count(ctx))
			}
		}
	}()
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, studyID string) (study model.Study, err error) {
	defer func(start time.Time) { observe(BackendMemory, "get", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.studies[studyID]
	if !ok {
		return model.Study{}, studyNotFound(studyID)
	}
	return st.Clone(), nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context) ([]model.StudyRef, error) {
	defer func(start time.Time) { observe(BackendMemory, "list", start, nil) }(time.Now())

	s.mu.RLock()
	refs := make([]model.StudyRef, 0, len(s.studies))
	for _, st := range s.studies {
		refs = append(refs, st.Ref())
	}
	s.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// AppendRating implements Store.AppendRating.
func (s *MemoryStore) AppendRating(_ context.Context, studyID, participantID string, ev model.RatingEvent) (err error) {
	defer func(start time.Time) { observe(BackendMemory, "append_rating", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.studies[studyID]
	if !ok {
		return studyNotFound(studyID)
	}
	return appendRating(st, participantID, ev)
}

// MarkCompleted implements Store.MarkCompleted.
func (s *MemoryStore) MarkCompleted(_ context.Context, studyID, participantID, completedAt string) (err error) {
	defer func(start time.Time) { observe(BackendMemory, "mark_completed", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.studies[studyID]
	if !ok {
		return studyNotFound(studyID)
	}
	_, err = markCompleted(st, participantID, completedAt)
	return err
}

// Seed implements Store.Seed.
func (s *MemoryStore) Seed(_ context.Context, studies []model.Study) (int, error) {
	defer func(start time.Time) { observe(BackendMemory, "seed", start, nil) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for i := range studies {
		if _, exists := s.studies[studies[i].ID]; exists {
			continue
		}
		cp := studies[i].Clone()
		s.studies[cp.ID] = &cp
		added++
	}
	metrics.UpdateStudyCount(len(s.studies))
	return added, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.studies)
}
