// Package retry wraps provider calls with bounded exponential back-off.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/switchyard-ai/switchyard/internal/gateway"
)

// Config defines retry behavior. MaxRetries counts retries, not attempts:
// a call runs at most MaxRetries+1 times.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterRange  time.Duration
}

// DefaultConfig matches the provider-call policy: up to 2 retries, 500ms
// base doubling to a 30s cap, plus ±200ms of jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterRange:  200 * time.Millisecond,
	}
}

// IsRetryable reports whether a failed provider call is worth retrying.
// Rate limits, server-side failures and timeouts are; everything else
// (bad requests, auth failures, budget rejections) is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var perr *gateway.ProviderError
	if errors.As(err, &perr) {
		switch {
		case perr.RateLimited():
			return true
		case perr.StatusCode >= 500:
			return true
		case perr.StatusCode == 0:
			// Transport-level failure with no HTTP status.
			return true
		}
		return false
	}

	return false
}

// Do runs fn with back-off until it succeeds, exhausts retries, fails
// non-retryably, or the context ends. A provider-advertised Retry-After
// overrides the computed delay when it is longer.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		wait := jittered(delay, cfg.JitterRange)
		if after := retryAfter(lastErr); after > wait {
			wait = after
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// Backoff computes the nominal delay before retry n (0-based), without
// jitter. Exposed for tests and for callers that schedule their own waits.
func Backoff(n int, cfg Config) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < n; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return delay
}

func jittered(d, jitterRange time.Duration) time.Duration {
	if jitterRange <= 0 {
		return d
	}
	offset := time.Duration(rand.Int63n(int64(2*jitterRange))) - jitterRange
	if d+offset < 0 {
		return 0
	}
	return d + offset
}

func retryAfter(err error) time.Duration {
	var perr *gateway.ProviderError
	if errors.As(err, &perr) && perr.RetryAfter > 0 {
		return perr.RetryAfter
	}
	return 0
}
