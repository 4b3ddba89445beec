// Package fixtures loads study snapshots from YAML documents.
package fixtures

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/studypulse/internal/domain/model"
)

//go:embed demo.yaml
var demoYAML []byte

// Sentinel errors.
var (
	ErrInvalidFixture = errors.New("invalid fixture")
)

type document struct {
	Studies []model.Study `yaml:"studies"`
}

// Parse decodes a fixture document from r.
// Unknown keys are rejected so typos in hand-written fixtures surface early.
func Parse(r io.Reader) ([]model.Study, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidFixture)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := validate(doc.Studies); err != nil {
		return nil, err
	}
	return doc.Studies, nil
}

// Load reads and parses the fixture file at path.
func Load(path string) ([]model.Study, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Demo returns the embedded demo studies.
func Demo() []model.Study {
	studies, err := Parse(bytes.NewReader(demoYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded demo fixture is broken: %v", err))
	}
	return studies
}

// LoadOrDemo loads path, falling back to the embedded demo when path is empty.
func LoadOrDemo(path string) ([]model.Study, error) {
	if strings.TrimSpace(path) == "" {
		return Demo(), nil
	}
	return Load(path)
}

func validate(studies []model.Study) error {
	seen := make(map[string]struct{}, len(studies))
	for i := range studies {
		s := &studies[i]
		if s.ID == "" {
			return fmt.Errorf("%w: study #%d has no id", ErrInvalidFixture, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate study id %q", ErrInvalidFixture, s.ID)
		}
		seen[s.ID] = struct{}{}

		people := make(map[string]struct{}, len(s.Participants))
		for j := range s.Participants {
			id := s.Participants[j].ID
			if id == "" {
				return fmt.Errorf("%w: study %q participant #%d has no id", ErrInvalidFixture, s.ID, j)
			}
			if _, dup := people[id]; dup {
				return fmt.Errorf("%w: study %q duplicate participant %q", ErrInvalidFixture, s.ID, id)
			}
			people[id] = struct{}{}
			if s.Participants[j].Ratings == nil {
				s.Participants[j].Ratings = []model.RatingEvent{}
			}
		}
	}
	return nil
}

// Rebase shifts every parseable timestamp in studies by whole days so that the
// latest event lands on anchor's UTC day, or the day before when it would
// otherwise fall after anchor. Demo data stays inside the default dashboard
// window that way. Unparseable values are left untouched.
func Rebase(studies []model.Study, anchor time.Time) {
	latest, ok := latestEvent(studies)
	if !ok {
		return
	}
	days := int(truncateDay(anchor).Sub(truncateDay(latest)).Hours() / 24)
	if latest.AddDate(0, 0, days).After(anchor) {
		days--
	}
	if days == 0 {
		return
	}
	shift := func(s *string) { *s = shiftValue(*s, days) }

	for i := range studies {
		st := &studies[i]
		shift(&st.StartDate)
		shift(&st.EndDate)
		for j := range st.Participants {
			p := &st.Participants[j]
			shift(&p.JoinedAt)
			shift(&p.CompletedAt)
			for k := range p.Ratings {
				shift(&p.Ratings[k].SubmittedAt)
			}
		}
	}
}

func latestEvent(studies []model.Study) (time.Time, bool) {
	var latest time.Time
	found := false
	consider := func(s string) {
		if t, err := time.Parse(time.RFC3339, s); err == nil && (!found || t.After(latest)) {
			latest, found = t, true
		}
	}
	for i := range studies {
		for j := range studies[i].Participants {
			p := &studies[i].Participants[j]
			consider(p.CompletedAt)
			for k := range p.Ratings {
				consider(p.Ratings[k].SubmittedAt)
			}
		}
	}
	return latest, found
}

func shiftValue(s string, days int) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().AddDate(0, 0, days).Format(time.RFC3339)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.AddDate(0, 0, days).Format(time.DateOnly)
	}
	return s
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
