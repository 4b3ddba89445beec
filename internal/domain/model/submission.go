package model

// Submission is a rating travelling through the ingestion queue.
type Submission struct {
	StudyID       string
	ParticipantID string
	Event         RatingEvent
}
