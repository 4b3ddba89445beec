package service

import "errors"

// Sentinel kinds returned by Service operations.
var (
	ErrNotStarted        = errors.New("service not started")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrQueueFull         = errors.New("submission queue full")
	ErrUnavailable       = errors.New("service unavailable")
)
