package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		Backoffs:    []time.Duration{time.Millisecond, 2 * time.Millisecond},
		CallTimeout: time.Second,
	}
}

func TestRetryPolicy_RateLimitedThenSuccess(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &ProviderError{Status: 429, Code: "RATE_LIMITED", Message: "slow down"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two backoffs give three attempts")
}

func TestRetryPolicy_ExhaustsSchedule(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &ProviderError{Status: 500, Code: "UPSTREAM_ERROR", Message: "boom"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	pe, ok := AsProviderError(err)
	require.True(t, ok, "last attempt's error should survive the policy")
	assert.Equal(t, 500, pe.Status)
}

func TestRetryPolicy_TerminalErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &ProviderError{Status: 400, Code: "PROVIDER_ERROR", Message: "bad input"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "client errors are not retryable")
}

func TestRetryPolicy_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{Backoffs: []time.Duration{time.Hour}}.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &ProviderError{Status: 500, Message: "boom"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation must not wait out the backoff")
}

func TestRetryPolicy_SlowAttemptStaysOnSchedule(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		Backoffs:    []time.Duration{time.Millisecond, time.Millisecond},
		CallTimeout: 20 * time.Millisecond,
	}
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "one slow attempt must not burn the whole schedule")
}

func TestRetryPolicy_TimeoutOnEveryAttempt(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		Backoffs:    []time.Duration{time.Millisecond},
		CallTimeout: 10 * time.Millisecond,
	}
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)

	pe, ok := AsProviderError(err)
	require.True(t, ok, "an exhausted timeout should read as an upstream failure")
	assert.True(t, IsUpstreamFailure(pe))
}

func TestRetryPolicy_ParentDeadlineIsTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := RetryPolicy{Backoffs: []time.Duration{time.Hour}, CallTimeout: time.Hour}.Do(ctx, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	_, ok := AsProviderError(err)
	assert.False(t, ok, "the caller's own deadline is not an upstream failure")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ProviderError{Status: 429}))
	assert.True(t, IsRetryable(&ProviderError{Status: 500}))
	assert.True(t, IsRetryable(&ProviderError{Status: 503}))
	assert.False(t, IsRetryable(&ProviderError{Status: 400, Message: "bad request"}))
	assert.False(t, IsRetryable(&ProviderError{Status: 404, Message: "missing"}))

	// Providers that bury the condition in the message
	assert.True(t, IsRetryable(errors.New("too many requests, retry later")))
	assert.True(t, IsRetryable(errors.New("internal failure upstream")))
	assert.True(t, IsRetryable(errors.New("server unavailable")))
	assert.False(t, IsRetryable(errors.New("invalid workflow name")))
	assert.False(t, IsRetryable(nil))
}

func TestProviderErrorClassifiers(t *testing.T) {
	rateLimited := &ProviderError{Status: 429}
	upstream := &ProviderError{Status: 502}
	client := &ProviderError{Status: 422}

	assert.True(t, IsRateLimited(rateLimited))
	assert.False(t, IsRateLimited(upstream))
	assert.True(t, IsUpstreamFailure(upstream))
	assert.False(t, IsUpstreamFailure(client))
	assert.False(t, IsRateLimited(errors.New("plain error")))
}
