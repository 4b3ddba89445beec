// Package model contains domain models passed between layers.
package model

// Study is a snapshot of one research study as handed over by the store.
// Timestamps are kept as the strings the store produced; consumers parse them.
type Study struct {
	ID                    string        `json:"id" yaml:"id"`
	Title                 string        `json:"title" yaml:"title"`
	Code                  string        `json:"code" yaml:"code"`
	PrincipalInvestigator string        `json:"principalInvestigator" yaml:"principal_investigator"`
	StartDate             string        `json:"startDate" yaml:"start_date"`
	EndDate               string        `json:"endDate" yaml:"end_date"`
	Artifacts             []Artifact    `json:"artifacts" yaml:"artifacts"`
	Participants          []Participant `json:"participants" yaml:"participants"`
}

// Artifact is one of the study's fixed comparison artifacts.
type Artifact struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Participant is a roster member with their rating history.
type Participant struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Region   string `json:"region" yaml:"region"`
	Persona  string `json:"persona" yaml:"persona"`
	JoinedAt string `json:"joinedAt" yaml:"joined_at"`
	// Progress is maintained by the study workflow, 0..100.
	Progress float64 `json:"progress" yaml:"progress"`
	// CompletedAt is empty while the participant has not finished.
	CompletedAt string        `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
	Ratings     []RatingEvent `json:"ratings" yaml:"ratings"`
}

// RatingEvent is a single rating submission for one artifact.
type RatingEvent struct {
	EventID      string  `json:"eventId,omitempty" yaml:"event_id,omitempty"`
	ArtifactID   string  `json:"artifactId" yaml:"artifact_id"`
	ArtifactName string  `json:"artifactName,omitempty" yaml:"artifact_name,omitempty"`
	Rating       float64 `json:"rating" yaml:"rating"`
	SubmittedAt  string  `json:"submittedAt" yaml:"submitted_at"`
}

// StudyRef is the listing shape of a study.
type StudyRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Code  string `json:"code"`
}

// Completed reports whether the participant reached the terminal state.
func (p *Participant) Completed() bool {
	return p.CompletedAt != ""
}

// Ref returns the listing shape of s.
func (s *Study) Ref() StudyRef {
	return StudyRef{ID: s.ID, Title: s.Title, Code: s.Code}
}

// Participant returns a pointer into s.Participants for id, or nil.
func (s *Study) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can read it without holding store locks.
func (s *Study) Clone() Study {
	out := *s
	out.Artifacts = append([]Artifact(nil), s.Artifacts...)
	out.Participants = make([]Participant, len(s.Participants))
	for i := range s.Participants {
		p := s.Participants[i]
		p.Ratings = append([]RatingEvent(nil), p.Ratings...)
		out.Participants[i] = p
	}
	return out
}
