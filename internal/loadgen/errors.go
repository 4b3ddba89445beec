package loadgen

import "errors"

// Sentinel kinds returned by Run.
var (
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrNoTargets     = errors.New("study has no participants or artifacts to rate")
	ErrNotIngested   = errors.New("accepted ratings did not show up in analytics")
	ErrInvalidConfig = errors.New("invalid load config")
)
