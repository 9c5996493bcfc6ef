// Package artifact keeps an auditable in-memory record of every routing
// decision and outcome. Records live in a bounded ring buffer, newest first;
// once recorded they are immutable except for response enrichment.
package artifact

import (
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/internal/quality"
)

type Type string

const (
	TypeRouteDecision     Type = "route_decision"
	TypeCacheHit          Type = "cache_hit"
	TypeBudgetReject      Type = "budget_reject"
	TypeCascadeEscalation Type = "cascade_escalation"
	TypeCascadeSuccess    Type = "cascade_success"
)

// TrailStep is one attempted cascade step.
type TrailStep struct {
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	StepIndex int     `json:"stepIndex"`
	Failed    bool    `json:"failed,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// CacheInfo describes the cache entry a hit was served from.
type CacheInfo struct {
	QueryHash  string  `json:"queryHash"`
	Similarity float64 `json:"similarity"`
	SavedCost  float64 `json:"savedCost"`
}

// BudgetSnapshot captures budget state at rejection time.
type BudgetSnapshot struct {
	Spent       float64 `json:"spent"`
	Limit       float64 `json:"limit"`
	PercentUsed float64 `json:"percentUsed"`
}

// ResponseInfo is the enrichment block attached after a provider responds.
type ResponseInfo struct {
	ResponseID     string `json:"responseId"`
	InputTokens    int    `json:"inputTokens"`
	OutputTokens   int    `json:"outputTokens"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	FinishReason   string `json:"finishReason,omitempty"`
	ContentLength  int    `json:"contentLength"`
}

// Artifact is a tagged record: the header fields are common to every type,
// the optional blocks are populated per type (and by enrichment).
type Artifact struct {
	ID            string          `json:"id"`
	QueryID       string          `json:"queryId"`
	EpochMs       int64           `json:"epochMs"`
	Type          Type            `json:"type"`
	Tags          []string        `json:"tags"`
	Complexity    string          `json:"complexity,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	Model         string          `json:"model,omitempty"`
	EstimatedCost float64         `json:"estimatedCost"`
	ActualCost    *float64        `json:"actualCost,omitempty"`
	Confidence    float64         `json:"confidence"`
	Reasoning     string          `json:"reasoning,omitempty"`
	CascadeTrail  []TrailStep     `json:"cascadeTrail,omitempty"`
	Quality       *quality.Report `json:"quality,omitempty"`
	Cache         *CacheInfo      `json:"cache,omitempty"`
	Budget        *BudgetSnapshot `json:"budget,omitempty"`
	Response      *ResponseInfo   `json:"response,omitempty"`
}

// HasTag reports whether the artifact carries the tag.
func (a *Artifact) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (a *Artifact) clone() Artifact {
	out := *a
	out.Tags = append([]string(nil), a.Tags...)
	out.CascadeTrail = append([]TrailStep(nil), a.CascadeTrail...)
	if a.ActualCost != nil {
		v := *a.ActualCost
		out.ActualCost = &v
	}
	if a.Quality != nil {
		q := *a.Quality
		q.Signals = append([]quality.Signal(nil), a.Quality.Signals...)
		out.Quality = &q
	}
	if a.Cache != nil {
		c := *a.Cache
		out.Cache = &c
	}
	if a.Budget != nil {
		b := *a.Budget
		out.Budget = &b
	}
	if a.Response != nil {
		r := *a.Response
		out.Response = &r
	}
	return out
}

func newID() string {
	return uuid.NewString()
}

func epochMs(t time.Time) int64 {
	return t.UnixMilli()
}
