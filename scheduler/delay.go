package scheduler

import (
	"time"

	"github.com/jpillora/backoff"
)

const (
	defaultBackoffMinimum = time.Second
	defaultBackoffMaximum = time.Hour
	defaultBackoffFactor  = 2
)

// newLaunchDelay builds the per-spec backoff source: each launch failure
// draws the next, strictly larger delay from it until the maximum is
// reached, and a successful launch resets it.
func newLaunchDelay(opts QueueOptions) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    opts.BackoffMinimum,
		Max:    opts.BackoffMaximum,
		Factor: opts.BackoffFactor,
		Jitter: false,
	}
}
