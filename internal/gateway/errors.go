// Package gateway defines the error taxonomy shared across the request
// pipeline. Core layers convert failures into these kinds at their
// boundaries; only the transport edge maps them to HTTP status codes.
package gateway

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks a client fault (malformed body, missing content).
	ErrInvalidInput = errors.New("invalid input")

	// ErrBudgetExceeded is returned when the daily budget is fully spent.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrAllCascadeStepsFailed is returned when every step of a cascade
	// chain raised a provider failure.
	ErrAllCascadeStepsFailed = errors.New("all cascade steps failed")

	// ErrCacheFailure marks a storage adapter error. It is never propagated
	// to callers; lookups degrade to misses and stores to no-ops.
	ErrCacheFailure = errors.New("cache failure")
)

// ProviderError wraps an upstream API failure with the provider and model
// that produced it.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s model %s: status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimited reports whether the upstream signalled 429. It is still a
// provider failure, but carries a retry-after hint.
func (e *ProviderError) RateLimited() bool { return e.StatusCode == 429 }

// BudgetExceededError carries the spend snapshot that caused the rejection.
type BudgetExceededError struct {
	Spent float64
	Limit float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded: spent $%.4f of $%.4f", e.Spent, e.Limit)
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }
