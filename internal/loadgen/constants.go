package loadgen

import "time"

// Defaults applied by Run when a Config field is zero.
const (
	DefaultWorkers    = 8
	DefaultTimeout    = 10 * time.Second
	DefaultSettleWait = 30 * time.Second
	DefaultPollEvery  = 250 * time.Millisecond

	workerChannelMultiplier = 2
	percentageMultiplier    = 100
	ratingScaleMin          = 1
	ratingScaleMax          = 5
)

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeThrottled = "throttled"
	outcomeFailed    = "failed"
)
