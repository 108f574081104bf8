package neows

import (
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// RetryPolicy bounds how the client retries transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64 // fraction of the delay added at random, 0 disables
}

// Delay returns the wait before retry number retry (0-based):
// BaseDelay * 2^retry plus up to Jitter of that, capped at MaxDelay.
// rnd must be in [0, 1).
func (p RetryPolicy) Delay(retry int, rnd float64) time.Duration {
	d := min(p.BaseDelay, p.MaxDelay)
	for i := 0; i < retry && d < p.MaxDelay; i++ {
		d = sharedretry.NextBackoff(d, p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * rnd)
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// attemptState tracks one request through its retries.
//
//	notStarted -> attempting -> succeeded
//	                         -> failedRetryable -> attempting
//	                         -> failedFatal
type attemptState int

const (
	stateNotStarted attemptState = iota
	stateAttempting
	stateSucceeded
	stateFailedRetryable
	stateFailedFatal
)

func (s attemptState) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateAttempting:
		return "attempting"
	case stateSucceeded:
		return "succeeded"
	case stateFailedRetryable:
		return "failed_retryable"
	case stateFailedFatal:
		return "failed_fatal"
	default:
		return "unknown"
	}
}
