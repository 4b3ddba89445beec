package analytics

import (
	"math"
	"sort"

	"github.com/okian/studypulse/internal/domain/model"
)

const maxPercent = 100

// artifactAverages computes the mean rating per artifact in first-seen order.
func artifactAverages(ratings []ratingRecord, artifacts []model.Artifact) []ArtifactAverage {
	names := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		names[a.ID] = a.Name
	}

	type acc struct {
		sum   float64
		count int
		name  string
	}
	order := make([]string, 0)
	byID := make(map[string]*acc)
	for _, r := range ratings {
		a, ok := byID[r.ArtifactID]
		if !ok {
			a = &acc{name: resolveArtifactName(r, names)}
			byID[r.ArtifactID] = a
			order = append(order, r.ArtifactID)
		}
		a.sum += r.Rating
		a.count++
	}

	out := make([]ArtifactAverage, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, ArtifactAverage{
			ArtifactID:    id,
			Name:          a.name,
			AverageRating: round2(a.sum / float64(a.count)),
			Submissions:   a.count,
		})
	}
	return out
}

func resolveArtifactName(r ratingRecord, names map[string]string) string {
	if n, ok := names[r.ArtifactID]; ok && n != "" {
		return n
	}
	if r.ArtifactName != "" {
		return r.ArtifactName
	}
	return r.ArtifactID
}

// timeline builds the daily rating and cumulative completion series.
// rosterSize must be positive.
func timeline(w Window, ev collected, rosterSize int) (ratingsTrend, completionTrend []TrendPoint) {
	type bucket struct {
		sum   float64
		count int
	}
	ratingsByDay := make(map[string]*bucket)
	for _, r := range ev.Ratings {
		b, ok := ratingsByDay[r.Day]
		if !ok {
			b = &bucket{}
			ratingsByDay[r.Day] = b
		}
		b.sum += r.Rating
		b.count++
	}
	completionsByDay := make(map[string]int)
	for _, c := range ev.Completions {
		completionsByDay[c.Day]++
	}

	days := w.Days()
	ratingsTrend = make([]TrendPoint, 0, len(days))
	completionTrend = make([]TrendPoint, 0, len(days))
	cumulative := 0
	for _, d := range days {
		key := dayKey(d)

		avg := 0.0
		if b, ok := ratingsByDay[key]; ok {
			avg = round2(b.sum / float64(b.count))
		}
		ratingsTrend = append(ratingsTrend, TrendPoint{Date: key, Value: avg})

		cumulative += completionsByDay[key]
		completionTrend = append(completionTrend, TrendPoint{Date: key, Value: float64(percent(cumulative, rosterSize))})
	}
	return ratingsTrend, completionTrend
}

// participantReports summarizes every roster member, highest progress first.
func participantReports(roster []model.Participant, ratings []ratingRecord) []ParticipantReport {
	type acc struct {
		sum    float64
		count  int
		latest ratingRecord
	}
	byParticipant := make(map[string]*acc, len(roster))
	for _, r := range ratings {
		a, ok := byParticipant[r.ParticipantID]
		if !ok {
			a = &acc{latest: r}
			byParticipant[r.ParticipantID] = a
		}
		a.sum += r.Rating
		a.count++
		if r.At.After(a.latest.At) {
			a.latest = r
		}
	}

	out := make([]ParticipantReport, 0, len(roster))
	for i := range roster {
		p := &roster[i]
		rep := ParticipantReport{
			ID:               p.ID,
			Name:             p.Name,
			Region:           p.Region,
			Persona:          p.Persona,
			Progress:         p.Progress,
			CompletionStatus: StatusInProgress,
			LastSubmissionAt: p.JoinedAt,
		}
		if p.Completed() {
			rep.CompletionStatus = StatusCompleted
		}
		if a, ok := byParticipant[p.ID]; ok {
			avg := round2(a.sum / float64(a.count))
			rep.AverageRating = &avg
			rep.LastSubmissionAt = a.latest.Raw
		}
		out = append(out, rep)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Progress > out[j].Progress
	})
	return out
}

func meanRating(ratings []ratingRecord) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += r.Rating
	}
	return round2(sum / float64(len(ratings)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent returns part/total as a whole percentage capped at 100.
func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(part) / float64(total) * maxPercent))
	if p > maxPercent {
		return maxPercent
	}
	return p
}
