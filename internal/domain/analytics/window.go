package analytics

import (
	"fmt"
	"strings"
	"time"
)

const (
	day = 24 * time.Hour

	// DayLayout renders timeline bucket keys.
	DayLayout = "2006-01-02"
	// isoLayout renders instants the way browsers print Date.toISOString.
	isoLayout = "2006-01-02T15:04:05.000Z07:00"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Window is the inclusive [From, To] range events are counted in.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Days returns the UTC calendar days covered by the window, first to last.
// The walk steps a fixed 24h from the truncated start.
func (w Window) Days() []time.Time {
	start := startOfDay(w.From)
	end := startOfDay(w.To)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start)/day)+1)
	for cursor := start; !cursor.After(end); cursor = cursor.Add(day) {
		days = append(days, cursor)
	}
	return days
}

// ResolveWindow turns the optional from/to query values into a concrete window.
// A missing to defaults to now and a missing from to to minus defaultSpan.
// A date-only to covers that whole UTC day, and the default from then starts
// at midnight defaultSpan before that day.
func ResolveWindow(fromRaw, toRaw string, now time.Time, defaultSpan time.Duration) (Window, error) {
	const op = "analytics.resolve_window"

	to := now.UTC()
	from := to.Add(-defaultSpan)
	if s := strings.TrimSpace(toRaw); s != "" {
		t, dateOnly, ok := parseInstant(s)
		if !ok {
			return Window{}, fmt.Errorf("%s: to=%q: %w", op, toRaw, ErrInvalidFilter)
		}
		from = t.Add(-defaultSpan)
		if dateOnly {
			t = t.Add(day - time.Nanosecond)
		}
		to = t
	}

	if s := strings.TrimSpace(fromRaw); s != "" {
		t, _, ok := parseInstant(s)
		if !ok {
			return Window{}, fmt.Errorf("%s: from=%q: %w", op, fromRaw, ErrInvalidFilter)
		}
		from = t
	}

	if from.After(to) {
		return Window{}, fmt.Errorf("%s: %w", op, ErrInvertedRange)
	}
	return Window{From: from, To: to}, nil
}

// parseInstant parses s as a full timestamp or a bare calendar date.
// All results are in UTC.
func parseInstant(s string) (time.Time, bool, bool) {
	if len(s) == len(DayLayout) {
		if t, err := time.Parse(DayLayout, s); err == nil {
			return t.UTC(), true, true
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), false, true
		}
	}
	return time.Time{}, false, false
}

// parseTimestamp is the lenient event-side parser: failure just means "skip".
func parseTimestamp(s string) (time.Time, bool) {
	t, _, ok := parseInstant(strings.TrimSpace(s))
	return t, ok
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
