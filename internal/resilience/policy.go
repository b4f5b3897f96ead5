package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retries of one storage operation.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is the wait before the second try; each later wait doubles.
	BaseDelay time.Duration
}

// DefaultPolicy tries three times, waiting 500ms and then 1s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond}
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// BackOff returns the wait schedule for one operation. The schedule stops
// after Attempts-1 waits or as soon as ctx is done.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	n := p.attempts()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.BaseDelay << uint(n)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(n-1)), ctx)
}
