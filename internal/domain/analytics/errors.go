package analytics

import "errors"

// Sentinel kinds for analytics errors. Callers match them with errors.Is.
var (
	ErrInvalidFilter = errors.New("invalid date filter provided")
	ErrInvertedRange = errors.New("the start date must be before the end date")
	ErrStudyMissing  = errors.New("study snapshot is nil")
)
