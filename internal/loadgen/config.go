// Package loadgen drives a running studypulse service with generated rating
// submissions and checks that they show up in the study analytics.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	StudyID     string        // Study receiving the ratings
	NumRatings  int           // Number of ratings to generate
	Workers     int           // Number of concurrent submitters
	Timeout     time.Duration // HTTP request timeout
	SettleWait  time.Duration // How long to wait for ingestion to catch up
	PollEvery   time.Duration // Poll interval while waiting
	ArtifactIDs []string      // Artifacts to rate; empty means discover from the study
	OutputFile  string        // Optional JSON dump of the generated ratings
	Verbose     bool          // Log every failed submission
}

// Rating is the request body of POST /study/{studyId}/ratings.
type Rating struct {
	EventID       string  `json:"eventId"`
	ParticipantID string  `json:"participantId"`
	ArtifactID    string  `json:"artifactId"`
	Rating        float64 `json:"rating"`
	SubmittedAt   string  `json:"submittedAt"`
}

// AckResponse represents the response from a rating submission.
type AckResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"eventId"`
	Duplicate bool   `json:"duplicate"`
}

// studyPayload is the subset of the analytics payload the run reads.
type studyPayload struct {
	Summary struct {
		SubmissionsCount int `json:"submissionsCount"`
	} `json:"summary"`
	Charts struct {
		ArtifactAverages []struct {
			ArtifactID string `json:"artifactId"`
		} `json:"artifactAverages"`
	} `json:"charts"`
	ParticipantOptions []struct {
		ID string `json:"id"`
	} `json:"participantOptions"`
}

// Stats holds run statistics.
type Stats struct {
	Generated        int
	Submitted        int
	Accepted         int
	Duplicate        int
	Throttled        int
	Failed           int
	BaselineCount    int
	FinalCount       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	SettledAfter     time.Duration
	IngestionSettled bool
}
