package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantErr   error
		wantCalls int
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "recovers", attempts: 3, failures: []error{errTransient, errTransient}, wantCalls: 3},
		{name: "exhausted", attempts: 2, failures: []error{errTransient, errTransient, errTransient}, wantErr: errTransient, wantCalls: 2},
		{name: "permanent stops", attempts: 5, failures: []error{errTransient, errPermanent}, wantErr: errPermanent, wantCalls: 2},
		{name: "zero attempts runs once", attempts: 0, failures: []error{errTransient}, wantErr: errTransient, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), RetryPolicy{Attempts: tt.attempts}, isPermanent, func(ctx context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, RetryPolicy{Attempts: 5, Delay: time.Hour}, nil, func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_BackOff(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{name: "single attempt", policy: RetryPolicy{Attempts: 1, Delay: time.Second}, want: []time.Duration{backoff.Stop}},
		{name: "zero attempts", policy: RetryPolicy{Delay: time.Second}, want: []time.Duration{backoff.Stop}},
		{
			name:   "constant delay",
			policy: RetryPolicy{Attempts: 3, Delay: 2 * time.Second},
			want:   []time.Duration{2 * time.Second, 2 * time.Second, backoff.Stop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.policy.BackOff(context.Background())
			b.Reset()

			got := make([]time.Duration, 0, len(tt.want))
			for range tt.want {
				got = append(got, b.NextBackOff())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDs(t *testing.T) {
	assert.Regexp(t, `^worker_[0-9a-f-]{36}$`, GenerateID("worker"))
	assert.Regexp(t, `^req-[0-9a-f]{32}$`, NewRequestID())
	assert.NotEqual(t, NewRequestID(), NewRequestID())
}
