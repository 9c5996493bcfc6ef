package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/gateway"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func providerErr(status int) error {
	return &gateway.ProviderError{Provider: "openai", Model: "gpt-4o", StatusCode: status, Err: errors.New("upstream")}
}

func TestSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetriesServerErrorsUpToLimit(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return providerErr(503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries

	var perr *gateway.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 503, perr.StatusCode)
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return providerErr(429)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return providerErr(400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour // the cancel must win the wait
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		cancel()
		return providerErr(500)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(providerErr(429)))
	assert.True(t, IsRetryable(providerErr(500)))
	assert.True(t, IsRetryable(providerErr(0)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(providerErr(400)))
	assert.False(t, IsRetryable(providerErr(401)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(gateway.ErrBudgetExceeded))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffDoublesToCap(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500*time.Millisecond, Backoff(0, cfg))
	assert.Equal(t, time.Second, Backoff(1, cfg))
	assert.Equal(t, 2*time.Second, Backoff(2, cfg))
	assert.Equal(t, 30*time.Second, Backoff(10, cfg))
}

func TestRetryAfterHintOverridesShorterDelay(t *testing.T) {
	hint := 3 * time.Millisecond
	start := time.Now()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &gateway.ProviderError{Provider: "openai", Model: "gpt-4o",
				StatusCode: 429, RetryAfter: hint, Err: errors.New("slow down")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), hint)
}
