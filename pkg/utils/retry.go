package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds calls to external APIs.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// BackOff returns a constant backoff allowing Attempts calls in total,
// stopped early when ctx is done.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)
}

// Retry runs fn until it succeeds, returns a permanent error, or the attempts
// run out. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, permanent func(error) bool, fn func(ctx context.Context) error) error {
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && permanent != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.BackOff(ctx))
}
