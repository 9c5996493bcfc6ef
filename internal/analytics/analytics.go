// Package analytics keeps a bounded in-memory stream of request events and
// serves aggregate summaries over it. Best-effort by design: recording never
// fails and never blocks the request path beyond a mutex.
package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventQuery    EventType = "query"
	EventCacheHit EventType = "cache_hit"
	EventError    EventType = "error"
)

// Event is one recorded request outcome.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	Query          string    `json:"query,omitempty"`
	Complexity     string    `json:"complexity,omitempty"`
	Intent         string    `json:"intent,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	Cost           float64   `json:"cost"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Summary is the aggregate view over the buffered events.
type Summary struct {
	TotalQueries      int                `json:"totalQueries"`
	CacheHits         int                `json:"cacheHits"`
	Errors            int                `json:"errors"`
	CacheHitRate      float64            `json:"cacheHitRate"`
	TotalCost         float64            `json:"totalCost"`
	AvgResponseTimeMs float64            `json:"avgResponseTimeMs"`
	ByComplexity      map[string]int     `json:"byComplexity"`
	ByIntent          map[string]int     `json:"byIntent"`
	ByProvider        map[string]int     `json:"byProvider"`
	CostByProvider    map[string]float64 `json:"costByProvider"`
}

const defaultCapacity = 10000

// Service buffers events newest first up to a fixed capacity.
type Service struct {
	mu  sync.Mutex
	buf []Event
	cap int
	now func() time.Time
}

type Option func(*Service)

func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cap = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(opts ...Option) *Service {
	s := &Service{cap: defaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stamps the event with an id and timestamp and buffers it.
func (s *Service) Record(e Event) Event {
	e.ID = uuid.NewString()
	e.Timestamp = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append([]Event{e}, s.buf...)
	if len(s.buf) > s.cap {
		s.buf = s.buf[:s.cap]
	}
	return e
}

// Events returns a page of buffered events, newest first, plus the total
// buffered count.
func (s *Service) Events(limit, offset int) ([]Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.buf)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]Event, end-offset)
	copy(out, s.buf[offset:end])
	return out, total
}

// GetSummary aggregates over every buffered event.
func (s *Service) GetSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		ByComplexity:   make(map[string]int),
		ByIntent:       make(map[string]int),
		ByProvider:     make(map[string]int),
		CostByProvider: make(map[string]float64),
	}

	var latencyTotal int64
	var latencyCount int
	for _, e := range s.buf {
		switch e.Type {
		case EventCacheHit:
			sum.CacheHits++
		case EventError:
			sum.Errors++
		}
		sum.TotalQueries++
		sum.TotalCost += e.Cost

		if e.Complexity != "" {
			sum.ByComplexity[e.Complexity]++
		}
		if e.Intent != "" {
			sum.ByIntent[e.Intent]++
		}
		if e.Provider != "" {
			sum.ByProvider[e.Provider]++
			sum.CostByProvider[e.Provider] += e.Cost
		}
		if e.ResponseTimeMs > 0 {
			latencyTotal += e.ResponseTimeMs
			latencyCount++
		}
	}

	if sum.TotalQueries > 0 {
		sum.CacheHitRate = float64(sum.CacheHits) / float64(sum.TotalQueries)
	}
	if latencyCount > 0 {
		sum.AvgResponseTimeMs = float64(latencyTotal) / float64(latencyCount)
	}
	return sum
}

// Size reports the number of buffered events.
func (s *Service) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
