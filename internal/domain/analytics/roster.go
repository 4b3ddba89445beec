package analytics

import (
	"time"

	"github.com/okian/studypulse/internal/domain/model"
)

// AllParticipants is the participant filter value meaning "no filter".
const AllParticipants = "all"

// FilterRoster narrows participants to the working roster: an optional single
// participant, and only those who joined on or before the window end.
// An unknown participantID yields an empty roster.
func FilterRoster(participants []model.Participant, participantID string, end time.Time) []model.Participant {
	roster := make([]model.Participant, 0, len(participants))
	for i := range participants {
		p := &participants[i]
		if participantID != "" && participantID != AllParticipants && p.ID != participantID {
			continue
		}
		joined, ok := parseTimestamp(p.JoinedAt)
		if !ok || joined.After(end) {
			continue
		}
		roster = append(roster, *p)
	}
	return roster
}
