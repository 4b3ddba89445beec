package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEvent = errors.New("duplicate rating event")
	ErrConflict       = errors.New("concurrent update conflict")
)

func studyNotFound(studyID string) error {
	return fmt.Errorf("study %q: %w", studyID, ErrNotFound)
}

func participantNotFound(studyID, participantID string) error {
	return fmt.Errorf("participant %q in study %q: %w", participantID, studyID, ErrNotFound)
}
