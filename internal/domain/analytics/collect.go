package analytics

import (
	"time"

	"github.com/okian/studypulse/internal/domain/model"
)

// ratingRecord is an in-window rating tagged with its owner and bucket day.
type ratingRecord struct {
	ParticipantID string
	Day           string
	ArtifactID    string
	ArtifactName  string
	Rating        float64
	At            time.Time
	Raw           string
}

// completionRecord is the derived completion event of one participant.
type completionRecord struct {
	ParticipantID string
	Day           string
}

// collected holds the flat event lists the aggregators reduce over.
type collected struct {
	Ratings     []ratingRecord
	Completions []completionRecord
}

// collectEvents flattens the roster's ratings and completions that fall inside w.
// Unparseable timestamps are dropped.
func collectEvents(roster []model.Participant, w Window) collected {
	var out collected
	for i := range roster {
		p := &roster[i]
		for _, ev := range p.Ratings {
			at, ok := parseTimestamp(ev.SubmittedAt)
			if !ok || !w.Contains(at) {
				continue
			}
			out.Ratings = append(out.Ratings, ratingRecord{
				ParticipantID: p.ID,
				Day:           dayKey(at),
				ArtifactID:    ev.ArtifactID,
				ArtifactName:  ev.ArtifactName,
				Rating:        ev.Rating,
				At:            at,
				Raw:           ev.SubmittedAt,
			})
		}
		if !p.Completed() {
			continue
		}
		if at, ok := parseTimestamp(p.CompletedAt); ok && w.Contains(at) {
			out.Completions = append(out.Completions, completionRecord{ParticipantID: p.ID, Day: dayKey(at)})
		}
	}
	return out
}
