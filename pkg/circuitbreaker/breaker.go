// Package circuitbreaker guards provider/model endpoints: after a run of
// consecutive failures the circuit opens and calls are skipped until a
// cooldown passes.
package circuitbreaker

import (
	"sync"
	"time"
)

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// Breaker tracks consecutive failures for one endpoint.
type Breaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// IsOpen reports whether calls should be skipped. An open circuit closes
// itself once the cooldown since the last failure has elapsed.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false
	}
	if b.now().Sub(b.lastFailure) > b.cooldown {
		b.open = false
		b.failures = 0
		return false
	}
	return true
}

// RecordSuccess closes the circuit and clears the failure run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// RecordFailure extends the failure run, opening the circuit at threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.open = true
	}
}

// Reset force-closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// State returns the current state for monitoring.
func (b *Breaker) State() (open bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.failures
}

// SetClock overrides the time source, for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Manager keys breakers by endpoint name (conventionally "provider:model").
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	threshold int
	cooldown  time.Duration
}

func NewManager(threshold int, cooldown time.Duration) *Manager {
	return &Manager{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for an endpoint, creating it on first use.
func (m *Manager) Get(endpoint string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[endpoint]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[endpoint]; ok {
		return b
	}
	b = New(m.threshold, m.cooldown)
	m.breakers[endpoint] = b
	return b
}

func (m *Manager) IsOpen(endpoint string) bool   { return m.Get(endpoint).IsOpen() }
func (m *Manager) RecordSuccess(endpoint string) { m.Get(endpoint).RecordSuccess() }
func (m *Manager) RecordFailure(endpoint string) { m.Get(endpoint).RecordFailure() }
func (m *Manager) Reset(endpoint string)         { m.Get(endpoint).Reset() }

// ResetAll force-closes every breaker.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}

// State is a monitoring snapshot of one breaker.
type State struct {
	Open     bool `json:"open"`
	Failures int  `json:"failures"`
}

// States snapshots every breaker.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]State, len(m.breakers))
	for endpoint, b := range m.breakers {
		open, failures := b.State()
		out[endpoint] = State{Open: open, Failures: failures}
	}
	return out
}
