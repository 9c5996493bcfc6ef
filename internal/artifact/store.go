package artifact

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/quality"
)

const defaultCapacity = 5000

// Store is the bounded ring buffer of artifacts. Records are kept newest
// first; when the buffer is full the oldest record is evicted.
type Store struct {
	mu      sync.Mutex
	buf     []*Artifact
	cap     int
	logger  *zap.Logger
	publish func(Artifact)
	now     func() time.Time
}

type Option func(*Store)

// WithCapacity overrides the ring buffer bound.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithPublish registers a callback invoked (with a copy) for every recorded
// artifact. The callback must not block.
func WithPublish(fn func(Artifact)) Option {
	return func(s *Store) { s.publish = fn }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		cap:    defaultCapacity,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RouteDecisionParams describes a route_decision artifact.
type RouteDecisionParams struct {
	QueryID       string
	Complexity    string
	Strategy      string
	Provider      string
	Model         string
	EstimatedCost float64
	Confidence    float64
	Reasoning     string
	Tags          []string
}

func (s *Store) RecordRouteDecision(p RouteDecisionParams) Artifact {
	return s.record(&Artifact{
		QueryID:       p.QueryID,
		Type:          TypeRouteDecision,
		Tags:          withTags(p.Tags, "routing"),
		Complexity:    p.Complexity,
		Strategy:      p.Strategy,
		Provider:      p.Provider,
		Model:         p.Model,
		EstimatedCost: p.EstimatedCost,
		Confidence:    p.Confidence,
		Reasoning:     p.Reasoning,
	})
}

// CacheHitParams describes a cache_hit artifact.
type CacheHitParams struct {
	QueryID    string
	Complexity string
	Provider   string
	Model      string
	QueryHash  string
	Similarity float64
	SavedCost  float64
	Tags       []string
}

func (s *Store) RecordCacheHit(p CacheHitParams) Artifact {
	return s.record(&Artifact{
		QueryID:    p.QueryID,
		Type:       TypeCacheHit,
		Tags:       withTags(p.Tags, "cache"),
		Complexity: p.Complexity,
		Provider:   p.Provider,
		Model:      p.Model,
		Confidence: 1,
		Reasoning:  "served from semantic cache",
		Cache: &CacheInfo{
			QueryHash:  p.QueryHash,
			Similarity: p.Similarity,
			SavedCost:  p.SavedCost,
		},
	})
}

// BudgetRejectParams describes a budget_reject artifact.
type BudgetRejectParams struct {
	QueryID     string
	Complexity  string
	Spent       float64
	Limit       float64
	PercentUsed float64
	Tags        []string
}

func (s *Store) RecordBudgetReject(p BudgetRejectParams) Artifact {
	return s.record(&Artifact{
		QueryID:    p.QueryID,
		Type:       TypeBudgetReject,
		Tags:       withTags(p.Tags, "budget"),
		Complexity: p.Complexity,
		Confidence: 1,
		Reasoning:  "daily budget exhausted",
		Budget: &BudgetSnapshot{
			Spent:       p.Spent,
			Limit:       p.Limit,
			PercentUsed: p.PercentUsed,
		},
	})
}

// EscalationParams describes a cascade_escalation artifact.
type EscalationParams struct {
	QueryID      string
	Complexity   string
	FromProvider string
	FromModel    string
	ToProvider   string
	ToModel      string
	Score        float64
	Threshold    float64
	StepIndex    int
	Tags         []string
}

func (s *Store) RecordCascadeEscalation(p EscalationParams) Artifact {
	return s.record(&Artifact{
		QueryID:    p.QueryID,
		Type:       TypeCascadeEscalation,
		Tags:       withTags(p.Tags, "cascade"),
		Complexity: p.Complexity,
		Provider:   p.ToProvider,
		Model:      p.ToModel,
		Confidence: 1,
		Reasoning:  "quality gate not met, escalating",
		CascadeTrail: []TrailStep{{
			Provider:  p.FromProvider,
			Model:     p.FromModel,
			Score:     p.Score,
			Threshold: p.Threshold,
			StepIndex: p.StepIndex,
		}},
	})
}

// SuccessParams describes a cascade_success artifact.
type SuccessParams struct {
	QueryID    string
	Complexity string
	Provider   string
	Model      string
	Trail      []TrailStep
	Tags       []string
}

func (s *Store) RecordCascadeSuccess(p SuccessParams) Artifact {
	return s.record(&Artifact{
		QueryID:      p.QueryID,
		Type:         TypeCascadeSuccess,
		Tags:         withTags(p.Tags, "cascade"),
		Complexity:   p.Complexity,
		Provider:     p.Provider,
		Model:        p.Model,
		Confidence:   1,
		Reasoning:    "cascade resolved",
		CascadeTrail: append([]TrailStep(nil), p.Trail...),
	})
}

func (s *Store) record(a *Artifact) Artifact {
	a.ID = newID()
	a.EpochMs = epochMs(s.now())

	s.mu.Lock()
	s.buf = append([]*Artifact{a}, s.buf...)
	if len(s.buf) > s.cap {
		s.buf = s.buf[:s.cap]
	}
	out := a.clone()
	s.mu.Unlock()

	if s.publish != nil {
		s.publish(out)
	}
	return out
}

// EnrichWithResponse attaches the actual cost, response block and optional
// quality report to the artifact with the given id. This is the only
// in-place mutation a stored artifact ever sees.
func (s *Store) EnrichWithResponse(id string, actualCost float64, resp ResponseInfo, report *quality.Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.buf {
		if a.ID != id {
			continue
		}
		cost := actualCost
		a.ActualCost = &cost
		r := resp
		a.Response = &r
		if report != nil {
			q := *report
			a.Quality = &q
			a.Confidence = report.Confidence
		}
		return true
	}
	if s.logger != nil {
		s.logger.Debug("enrichment target already evicted", zap.String("artifact_id", id))
	}
	return false
}

// Recent returns up to n artifacts, newest first.
func (s *Store) Recent(n int) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFiltered(n, func(*Artifact) bool { return true })
}

// ByQueryID returns the full artifact trail for one query, in the order the
// artifacts were recorded.
func (s *Store) ByQueryID(queryID string) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The buffer is newest first; walking it backwards restores insertion
	// order without leaning on timestamps, which collide within a
	// millisecond.
	var out []Artifact
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].QueryID == queryID {
			out = append(out, s.buf[i].clone())
		}
	}
	return out
}

// ByType returns up to n artifacts of the given type, newest first.
func (s *Store) ByType(t Type, n int) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFiltered(n, func(a *Artifact) bool { return a.Type == t })
}

// ByTag returns up to n artifacts carrying the tag, newest first.
func (s *Store) ByTag(tag string, n int) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFiltered(n, func(a *Artifact) bool { return a.HasTag(tag) })
}

// ByTimeRange returns artifacts recorded in [from, to], newest first.
func (s *Store) ByTimeRange(from, to time.Time) []Artifact {
	a, b := from.UnixMilli(), to.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFiltered(0, func(art *Artifact) bool {
		return art.EpochMs >= a && art.EpochMs <= b
	})
}

// copyFiltered walks the buffer (newest first) under the caller-held lock.
// n <= 0 means no limit.
func (s *Store) copyFiltered(n int, keep func(*Artifact) bool) []Artifact {
	var out []Artifact
	for _, a := range s.buf {
		if !keep(a) {
			continue
		}
		out = append(out, a.clone())
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// Size reports the number of buffered artifacts.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Summary aggregates today's activity.
type Summary struct {
	TodayCount         int            `json:"todayCount"`
	CountsByType       map[Type]int   `json:"countsByType"`
	TotalCostToday     float64        `json:"totalCostToday"`
	CascadeEscalations int            `json:"cascadeEscalations"`
	CacheHits          int            `json:"cacheHits"`
	AverageConfidence  float64        `json:"averageConfidence"`
}

// GetSummary aggregates over artifacts recorded since local midnight. Cost
// uses the actual cost when enrichment landed, the estimate otherwise.
func (s *Store) GetSummary() Summary {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := midnight.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{CountsByType: make(map[Type]int)}
	var confTotal float64
	for _, a := range s.buf {
		if a.EpochMs < cutoff {
			continue
		}
		sum.TodayCount++
		sum.CountsByType[a.Type]++
		confTotal += a.Confidence

		switch a.Type {
		case TypeCascadeEscalation:
			sum.CascadeEscalations++
		case TypeCacheHit:
			sum.CacheHits++
		}

		if a.ActualCost != nil {
			sum.TotalCostToday += *a.ActualCost
		} else if a.Type == TypeRouteDecision {
			sum.TotalCostToday += a.EstimatedCost
		}
	}
	if sum.TodayCount > 0 {
		sum.AverageConfidence = confTotal / float64(sum.TodayCount)
	}
	return sum
}

func withTags(tags []string, base string) []string {
	out := append([]string{base}, tags...)
	return out
}
