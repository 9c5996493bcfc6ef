package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/gateway"
	"github.com/switchyard-ai/switchyard/internal/retry"
	"github.com/switchyard-ai/switchyard/pkg/circuitbreaker"
)

// Health is the monitoring snapshot for one registered provider.
type Health struct {
	Name          string    `json:"name"`
	Live          bool      `json:"live"`
	Healthy       bool      `json:"healthy"`
	LatencyMs     int64     `json:"latencyMs"`
	SuccessRate   float64   `json:"successRate"`
	TotalCalls    int64     `json:"totalCalls"`
	FailedCalls   int64     `json:"failedCalls"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

type providerState struct {
	p           Provider
	live        bool
	latencyMs   int64
	totalCalls  int64
	failedCalls int64
	lastChecked time.Time
}

// Registry holds the configured providers, wraps their calls with retry and
// per-endpoint circuit breaking, and tracks call statistics.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*providerState
	breakers *circuitbreaker.Manager
	retryCfg retry.Config
	logger   *zap.Logger
	onChange func(Health)
}

type RegistryOption func(*Registry)

// WithRetryConfig overrides the provider-call retry policy.
func WithRetryConfig(cfg retry.Config) RegistryOption {
	return func(r *Registry) { r.retryCfg = cfg }
}

// WithBreakers overrides the circuit breaker manager.
func WithBreakers(m *circuitbreaker.Manager) RegistryOption {
	return func(r *Registry) { r.breakers = m }
}

// WithHealthChange registers a callback invoked whenever a provider's
// liveness flips. Used to feed the event hub.
func WithHealthChange(fn func(Health)) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:  make(map[string]*providerState),
		breakers: circuitbreaker.NewManager(5, 30*time.Second),
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider. Providers start live until a health check or
// call says otherwise.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name()] = &providerState{p: p, live: true}
}

// Get returns the provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return st.p, true
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ErrProviderUnknown is returned for calls to an unregistered provider.
var ErrProviderUnknown = errors.New("provider not registered")

// ErrCircuitOpen is returned when the endpoint's breaker is open. It maps
// to a provider failure without consuming a provider call.
var ErrCircuitOpen = errors.New("circuit open")

// Chat calls the named provider with retry and circuit breaking. Failures
// are wrapped into the gateway taxonomy before returning.
func (r *Registry) Chat(ctx context.Context, name string, req ChatRequest, model string) (*ChatResponse, error) {
	r.mu.Lock()
	st, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, &gateway.ProviderError{Provider: name, Model: model, Err: ErrProviderUnknown}
	}

	endpoint := name + ":" + model
	if r.breakers.IsOpen(endpoint) {
		return nil, &gateway.ProviderError{Provider: name, Model: model, Err: ErrCircuitOpen}
	}

	start := time.Now()
	var resp *ChatResponse
	err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = st.p.Chat(ctx, req, model)
		return callErr
	})
	elapsed := time.Since(start)

	r.recordOutcome(name, endpoint, elapsed, err)
	if err != nil {
		var perr *gateway.ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &gateway.ProviderError{Provider: name, Model: model, Err: err}
	}
	if resp.ResponseTimeMs == 0 {
		resp.ResponseTimeMs = elapsed.Milliseconds()
	}
	return resp, nil
}

func (r *Registry) recordOutcome(name, endpoint string, elapsed time.Duration, err error) {
	r.mu.Lock()
	st, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	st.totalCalls++
	st.latencyMs = elapsed.Milliseconds()
	wasLive := st.live
	if err != nil {
		st.failedCalls++
	}
	var change *Health
	if live := err == nil; live != wasLive {
		st.live = live
		h := healthOf(name, st, r.breakers.IsOpen(endpoint))
		change = &h
	}
	r.mu.Unlock()

	if err != nil {
		r.breakers.RecordFailure(endpoint)
		r.logger.Warn("provider call failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		r.breakers.RecordSuccess(endpoint)
	}

	if change != nil && r.onChange != nil {
		r.onChange(*change)
	}
}

// CheckHealth runs every provider's health check and updates liveness.
func (r *Registry) CheckHealth(ctx context.Context) []Health {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make([]Health, 0, len(names))
	for _, name := range names {
		r.mu.Lock()
		st, ok := r.entries[name]
		r.mu.Unlock()
		if !ok {
			continue
		}

		start := time.Now()
		live := st.p.HealthCheck(ctx)
		elapsed := time.Since(start)

		r.mu.Lock()
		wasLive := st.live
		st.live = live
		st.latencyMs = elapsed.Milliseconds()
		st.lastChecked = time.Now()
		h := healthOf(name, st, false)
		r.mu.Unlock()

		if live != wasLive && r.onChange != nil {
			r.onChange(h)
		}
		out = append(out, h)
	}
	return out
}

// HealthSnapshot reports the last known health of every provider without
// issuing new checks.
func (r *Registry) HealthSnapshot() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Health, 0, len(names))
	for _, name := range names {
		out = append(out, healthOf(name, r.entries[name], false))
	}
	return out
}

// BreakerStates exposes breaker state for the health endpoint.
func (r *Registry) BreakerStates() map[string]circuitbreaker.State {
	return r.breakers.States()
}

func healthOf(name string, st *providerState, breakerOpen bool) Health {
	rate := 1.0
	if st.totalCalls > 0 {
		rate = float64(st.totalCalls-st.failedCalls) / float64(st.totalCalls)
	}
	return Health{
		Name:          name,
		Live:          st.live,
		Healthy:       st.live && !breakerOpen && rate >= 0.5,
		LatencyMs:     st.latencyMs,
		SuccessRate:   rate,
		TotalCalls:    st.totalCalls,
		FailedCalls:   st.failedCalls,
		LastCheckedAt: st.lastChecked,
	}
}
