// Package analytics aggregates a study's rating and completion events into the
// monitor dashboard payload.
//
// The engine is a pure pipeline over an immutable snapshot:
//
//	window -> roster -> events -> (artifact averages, timeline, participants) -> response
//
// Nothing is cached and the snapshot is not retained after Build returns, so an
// Engine is safe for concurrent use.
package analytics

import (
	"strings"
	"time"

	"github.com/okian/studypulse/internal/domain/model"
)

// Default engine configuration.
const (
	DefaultRefreshIntervalSeconds = 30
	DefaultWindowDays             = 30
)

// Query carries the raw request filters. Empty strings mean "not supplied".
type Query struct {
	From          string
	To            string
	ParticipantID string
}

// Engine builds analytics responses.
type Engine struct {
	refreshIntervalSeconds int
	windowSpan             time.Duration
	now                    func() time.Time
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRefreshIntervalSeconds sets the polling hint surfaced to clients.
func WithRefreshIntervalSeconds(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.refreshIntervalSeconds = seconds
		}
	}
}

// WithDefaultWindowDays sets how far back a missing from reaches.
func WithDefaultWindowDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.windowSpan = time.Duration(days) * day
		}
	}
}

// WithClock replaces the wall clock, used for the default window end and lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		refreshIntervalSeconds: DefaultRefreshIntervalSeconds,
		windowSpan:             DefaultWindowDays * day,
		now:                    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build runs the aggregation pipeline for one study.
// It fails only with ErrInvalidFilter or ErrInvertedRange (wrapped), or
// ErrStudyMissing for a nil snapshot.
func (e *Engine) Build(study *model.Study, q Query) (*Response, error) {
	if study == nil {
		return nil, ErrStudyMissing
	}
	now := e.now()

	w, err := ResolveWindow(q.From, q.To, now, e.windowSpan)
	if err != nil {
		return nil, err
	}

	participantID := strings.TrimSpace(q.ParticipantID)
	if participantID == "" {
		participantID = AllParticipants
	}

	resp := &Response{
		Study: StudyInfo{
			ID:                    study.ID,
			Title:                 study.Title,
			Code:                  study.Code,
			PrincipalInvestigator: study.PrincipalInvestigator,
			StartDate:             study.StartDate,
			EndDate:               study.EndDate,
		},
		Filters: Filters{
			From:          formatISO(w.From),
			To:            formatISO(w.To),
			ParticipantID: participantID,
		},
		Summary: Summary{
			RefreshIntervalSeconds: e.refreshIntervalSeconds,
			LastUpdated:            formatISO(now),
		},
		Charts: Charts{
			RatingsTrend:     []TrendPoint{},
			CompletionTrend:  []TrendPoint{},
			ArtifactAverages: []ArtifactAverage{},
		},
		Participants:       []ParticipantReport{},
		ParticipantOptions: participantOptions(study.Participants),
		Exportable:         true,
	}

	roster := FilterRoster(study.Participants, participantID, w.To)
	if len(roster) == 0 {
		return resp, nil
	}

	ev := collectEvents(roster, w)
	ratingsTrend, completionTrend := timeline(w, ev, len(roster))

	completed := 0
	for i := range roster {
		if roster[i].Completed() {
			completed++
		}
	}

	resp.Summary.AverageRating = meanRating(ev.Ratings)
	resp.Summary.CompletionPercentage = percent(completed, len(roster))
	resp.Summary.SubmissionsCount = len(ev.Ratings)
	resp.Summary.ActiveParticipants = len(roster)
	resp.Summary.CompletedParticipants = completed
	resp.Charts = Charts{
		RatingsTrend:     ratingsTrend,
		CompletionTrend:  completionTrend,
		ArtifactAverages: artifactAverages(ev.Ratings, study.Artifacts),
	}
	resp.Participants = participantReports(roster, ev.Ratings)
	return resp, nil
}

func participantOptions(participants []model.Participant) []ParticipantOption {
	out := make([]ParticipantOption, 0, len(participants))
	for i := range participants {
		p := &participants[i]
		out = append(out, ParticipantOption{ID: p.ID, Name: p.Name, Region: p.Region})
	}
	return out
}
