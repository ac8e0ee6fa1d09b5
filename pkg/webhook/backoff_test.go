package webhook

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	b := DefaultBackoff()()

	var got []time.Duration
	for i := 0; i < 9; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, time.Minute, time.Minute, time.Minute,
	}, got)
}

func TestExponentialBackoffNeverStops(t *testing.T) {
	b := ExponentialBackoff(time.Millisecond, 2, 5*time.Millisecond, 0)()
	for i := 0; i < 1000; i++ {
		assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	}
}

func TestExponentialBackoffJitterStaysUnderCeiling(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, 2, time.Second, 0.5)()

	for attempt := 1; attempt < 20; attempt++ {
		d := b.NextBackOff()
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestExponentialBackoffResetsPerBatch(t *testing.T) {
	policy := ExponentialBackoff(10*time.Millisecond, 2, time.Second, 0)
	first := policy()
	first.NextBackOff()
	first.NextBackOff()

	assert.Equal(t, 10*time.Millisecond, policy().NextBackOff())
}
