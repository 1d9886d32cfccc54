package httpx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries an operation with exponential backoff. It is the
// single retry implementation in the codebase: order placement and
// closing both run under one of these, and plain data reads run under
// none. Wrap an error with Permanent to stop retrying immediately.
type RetryPolicy struct {
	// MaxAttempts caps the total number of tries, the first included.
	// Zero means the elapsed budget alone bounds the retries.
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy returns the policy used for order operations.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      20 * time.Second,
	}
}

// Do runs op until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context ends.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed

	var bo backoff.BackOff = backoff.WithContext(b, ctx)
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxAttempts-1)
	}
	return backoff.Retry(op, bo)
}

// Permanent marks err as non-retryable for Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
