package webhook

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy builds the retry schedule for one batch. Every batch starts from the initial
// interval again.
type BackoffPolicy func() backoff.BackOff

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffFactor  = 2.0
	DefaultBackoffMax     = time.Minute
)

// ExponentialBackoff grows initial by factor per attempt and never stops on its own. Jitter is a
// fraction of the delay (0.2 = ±20%); the jittered result is still capped at max when max is
// positive.
func ExponentialBackoff(initial time.Duration, factor float64, max time.Duration, jitter float64) BackoffPolicy {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.Multiplier = factor
		b.RandomizationFactor = jitter
		b.MaxElapsedTime = 0
		b.MaxInterval = time.Duration(math.MaxInt64)
		if max > 0 {
			b.MaxInterval = max
		}
		b.Reset()
		return &ceiling{BackOff: b, max: max}
	}
}

// DefaultBackoff starts at one second and doubles up to a one minute ceiling.
func DefaultBackoff() BackoffPolicy {
	return ExponentialBackoff(DefaultBackoffInitial, DefaultBackoffFactor, DefaultBackoffMax, 0)
}

type ceiling struct {
	backoff.BackOff
	max time.Duration
}

func (c *ceiling) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if c.max > 0 && d > c.max {
		return c.max
	}
	return d
}
