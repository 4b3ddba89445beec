package analytics

// Response is the monitor dashboard payload for one study.
type Response struct {
	Study              StudyInfo           `json:"study"`
	Filters            Filters             `json:"filters"`
	Summary            Summary             `json:"summary"`
	Charts             Charts              `json:"charts"`
	Participants       []ParticipantReport `json:"participants"`
	ParticipantOptions []ParticipantOption `json:"participantOptions"`
	Exportable         bool                `json:"exportable"`
}

// StudyInfo is the metadata block.
type StudyInfo struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	Code                  string `json:"code"`
	PrincipalInvestigator string `json:"principalInvestigator"`
	StartDate             string `json:"startDate"`
	EndDate               string `json:"endDate"`
}

// Filters echoes the resolved window and participant filter.
type Filters struct {
	From          string `json:"from"`
	To            string `json:"to"`
	ParticipantID string `json:"participantId"`
}

// Summary holds the headline numbers.
type Summary struct {
	AverageRating          float64 `json:"averageRating"`
	CompletionPercentage   int     `json:"completionPercentage"`
	SubmissionsCount       int     `json:"submissionsCount"`
	ActiveParticipants     int     `json:"activeParticipants"`
	CompletedParticipants  int     `json:"completedParticipants"`
	RefreshIntervalSeconds int     `json:"refreshIntervalSeconds"`
	LastUpdated            string  `json:"lastUpdated"`
}

// Charts groups the chart series.
type Charts struct {
	RatingsTrend     []TrendPoint      `json:"ratingsTrend"`
	CompletionTrend  []TrendPoint      `json:"completionTrend"`
	ArtifactAverages []ArtifactAverage `json:"artifactAverages"`
}

// TrendPoint is one daily bucket. Days without data carry 0, never null.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ArtifactAverage is the mean rating of one artifact inside the window.
type ArtifactAverage struct {
	ArtifactID    string  `json:"artifactId"`
	Name          string  `json:"name"`
	AverageRating float64 `json:"averageRating"`
	Submissions   int     `json:"submissions"`
}

// Completion status values.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
)

// ParticipantReport summarizes one roster member.
// AverageRating is nil when the participant has no in-window ratings.
type ParticipantReport struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Region           string   `json:"region"`
	Persona          string   `json:"persona"`
	Progress         float64  `json:"progress"`
	AverageRating    *float64 `json:"averageRating"`
	CompletionStatus string   `json:"completionStatus"`
	LastSubmissionAt string   `json:"lastSubmissionAt"`
}

// ParticipantOption feeds the client-side participant filter.
type ParticipantOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}
