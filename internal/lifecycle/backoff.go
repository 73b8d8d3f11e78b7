package lifecycle

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newBackOff returns the retry schedule of one establish run: base doubling up
// to ceiling, without jitter.
func newBackOff(base, ceiling time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = ceiling
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}
