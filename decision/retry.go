package decision

import (
	"context"
	"time"
)

// RetryPolicy is applied uniformly around provider calls instead of ad hoc
// sleep loops.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// DefaultRetry matches the usual provider guidance: three attempts with
// exponential backoff starting at one second.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, BackoffFactor: 2}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
	return err
}
