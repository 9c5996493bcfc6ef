// Package routing turns a classified query and the current budget state
// into a routing decision: which provider/model to call, under which
// strategy, optionally with a cascade chain.
package routing

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/costbook"
)

type Strategy string

const (
	StrategyPriority      Strategy = "priority"
	StrategyCostOptimized Strategy = "cost-optimized"
	StrategyCascade       Strategy = "cascade"
	StrategyEmergency     Strategy = "emergency"
)

// ValidStrategy reports whether s names a routing strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyPriority, StrategyCostOptimized, StrategyCascade, StrategyEmergency:
		return true
	}
	return false
}

// ChainStep is one rung of a cascade ladder.
type ChainStep struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	QualityThreshold float64 `json:"qualityThreshold"`
}

// Decision is the routing output. Chain is non-empty only for cascade.
type Decision struct {
	Strategy              Strategy    `json:"strategy"`
	Provider              string      `json:"provider"`
	Model                 string      `json:"model"`
	EstimatedInputTokens  int         `json:"estimatedInputTokens"`
	EstimatedOutputTokens int         `json:"estimatedOutputTokens"`
	EstimatedCost         float64     `json:"estimatedCost"`
	Confidence            float64     `json:"confidence"`
	Reasoning             string      `json:"reasoning"`
	Chain                 []ChainStep `json:"chain,omitempty"`
}

// BudgetView is the slice of budget state routing consults.
type BudgetView interface {
	EmergencyMode() bool
	Status(period budget.Period) budget.Status
	IsProviderDisabled(provider string) bool
}

// The last-resort model when nothing else fits the remaining budget.
var fallbackStep = ChainStep{Provider: "openai", Model: "gpt-4o-mini"}

// Default cascade ladders. Tier 1 is always the cheapest search-capable
// band so realtime queries need no special casing.
var defaultChains = map[classify.Complexity][]ChainStep{
	classify.Simple: {
		{Provider: "perplexity", Model: "sonar", QualityThreshold: 6.0},
		{Provider: "openai", Model: "gpt-4o-mini", QualityThreshold: 7.0},
		{Provider: "openai", Model: "gpt-4o", QualityThreshold: 7.5},
	},
	classify.Medium: {
		{Provider: "perplexity", Model: "sonar", QualityThreshold: 7.0},
		{Provider: "openai", Model: "gpt-4o-mini", QualityThreshold: 8.5},
		{Provider: "openai", Model: "gpt-4o", QualityThreshold: 9.0},
	},
	classify.Complex: {
		{Provider: "perplexity", Model: "sonar-pro", QualityThreshold: 7.5},
		{Provider: "openai", Model: "gpt-4o", QualityThreshold: 8.5},
		{Provider: "anthropic", Model: "claude-sonnet-4", QualityThreshold: 9.0},
	},
}

type Router struct {
	book            *costbook.Book
	budget          BudgetView
	defaultStrategy Strategy
	cascadeFloor    float64
	logger          *zap.Logger
}

type RouterOption func(*Router)

// WithCascadeFloor raises every cascade step's quality bar to at least min.
func WithCascadeFloor(min float64) RouterOption {
	return func(r *Router) {
		if min > 0 && min <= 10 {
			r.cascadeFloor = min
		}
	}
}

func NewRouter(book *costbook.Book, bv BudgetView, defaultStrategy Strategy, logger *zap.Logger, opts ...RouterOption) *Router {
	if !ValidStrategy(defaultStrategy) {
		defaultStrategy = StrategyCascade
	}
	r := &Router{book: book, budget: bv, defaultStrategy: defaultStrategy, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves the strategy and selects a model. override may be empty.
func (r *Router) Route(q classify.Query, override Strategy) Decision {
	strategy := r.resolveStrategy(override)

	inTok := q.EstimatedTokens
	outTok := costbook.EstimateOutputTokens(q.Complexity, inTok)

	var d Decision
	switch strategy {
	case StrategyPriority:
		d = r.routePriority(q, inTok, outTok)
	case StrategyCostOptimized:
		d = r.routeCostOptimized(q, inTok, outTok)
	case StrategyEmergency:
		d = r.routeEmergency(q, inTok, outTok)
	default:
		d = r.routeCascade(q, inTok, outTok)
	}

	// Emergency mode can disable providers out from under any strategy.
	if d.Strategy != StrategyEmergency && r.budget.IsProviderDisabled(d.Provider) {
		r.logger.Info("selected provider disabled, re-routing",
			zap.String("provider", d.Provider),
			zap.String("strategy", string(d.Strategy)))
		d = r.routeEmergency(q, inTok, outTok)
	}

	return d
}

func (r *Router) resolveStrategy(override Strategy) Strategy {
	if r.budget.EmergencyMode() {
		return StrategyEmergency
	}
	if ValidStrategy(override) {
		return override
	}
	return r.defaultStrategy
}

func (r *Router) routePriority(q classify.Query, inTok, outTok int) Decision {
	var (
		p      costbook.Profile
		ok     bool
		reason string
	)

	switch {
	case q.Realtime || q.Intent == classify.IntentSearch:
		p, ok = r.book.CheapestWithCapability(costbook.CapWebSearch, q.Complexity, inTok, outTok)
		reason = "search intent routed to search-capable provider"
	case q.Intent == classify.IntentReasoning:
		p, ok = r.book.CheapestWithCapability(costbook.CapReasoning, q.Complexity, inTok, outTok)
		reason = "reasoning intent routed to reasoning-capable provider"
	case q.Intent == classify.IntentCode:
		p, ok = r.bestWithCapability(costbook.CapCode, q.Complexity, inTok, outTok)
		reason = "code intent routed to strongest code model"
	case q.Complexity == classify.Complex:
		p, ok = r.book.HighestTier(q.Complexity, inTok, outTok)
		reason = "complex query routed to highest tier"
	default:
		p, ok = r.book.CheapestSuitable(q.Complexity, inTok, outTok)
		reason = "default: cheapest model suitable for complexity"
	}
	if !ok {
		return r.fallbackDecision(StrategyPriority, inTok, outTok, "no profile matched, using fallback model")
	}
	return r.decide(StrategyPriority, p, inTok, outTok, 0.85, reason)
}

func (r *Router) routeCostOptimized(q classify.Query, inTok, outTok int) Decision {
	ranked := r.book.ModelsByCost(q.Complexity, inTok, outTok)
	needSearch := q.Realtime || q.Intent == classify.IntentSearch

	for _, rk := range ranked {
		if needSearch && !rk.Profile.HasCapability(costbook.CapWebSearch) {
			continue
		}
		reason := "cheapest suitable model by cost ranking"
		if needSearch {
			reason = "cheapest search-capable model by cost ranking"
		}
		return r.decide(StrategyCostOptimized, rk.Profile, inTok, outTok, 0.8, reason)
	}
	return r.fallbackDecision(StrategyCostOptimized, inTok, outTok, "cost ranking empty, using fallback model")
}

func (r *Router) routeCascade(q classify.Query, inTok, outTok int) Decision {
	chain := append([]ChainStep(nil), defaultChains[q.Complexity]...)
	if len(chain) == 0 {
		chain = append(chain, defaultChains[classify.Medium]...)
	}
	for i := range chain {
		if chain[i].QualityThreshold < r.cascadeFloor {
			chain[i].QualityThreshold = r.cascadeFloor
		}
	}

	head := chain[0]
	est := r.book.EstimateCost(head.Provider, head.Model, inTok, outTok)
	return Decision{
		Strategy:              StrategyCascade,
		Provider:              head.Provider,
		Model:                 head.Model,
		EstimatedInputTokens:  inTok,
		EstimatedOutputTokens: outTok,
		EstimatedCost:         est.EstimatedCost,
		Confidence:            0.75,
		Reasoning:             fmt.Sprintf("%d-step cascade starting at cheapest capable tier", len(chain)),
		Chain:                 chain,
	}
}

func (r *Router) routeEmergency(q classify.Query, inTok, outTok int) Decision {
	remaining := r.budget.Status(budget.Daily).Remaining

	p, ok := r.book.CheapestWithinBudget(q.Complexity, inTok, outTok, remaining)
	if ok && !r.budget.IsProviderDisabled(p.Provider) {
		return r.decide(StrategyEmergency, p, inTok, outTok, 0.6,
			fmt.Sprintf("emergency mode: cheapest model within $%.4f remaining", remaining))
	}
	return r.fallbackDecision(StrategyEmergency, inTok, outTok, "emergency mode: nothing fits remaining budget, using fallback model")
}

// bestWithCapability picks the most expensive capable model, treating price
// as the quality proxy within a complexity band.
func (r *Router) bestWithCapability(cap string, c classify.Complexity, inTok, outTok int) (costbook.Profile, bool) {
	ranked := r.book.ModelsByCost(c, inTok, outTok)
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Profile.HasCapability(cap) {
			return ranked[i].Profile, true
		}
	}
	return costbook.Profile{}, false
}

func (r *Router) decide(s Strategy, p costbook.Profile, inTok, outTok int, confidence float64, reason string) Decision {
	est := r.book.EstimateCost(p.Provider, p.Model, inTok, outTok)
	return Decision{
		Strategy:              s,
		Provider:              p.Provider,
		Model:                 p.Model,
		EstimatedInputTokens:  inTok,
		EstimatedOutputTokens: outTok,
		EstimatedCost:         est.EstimatedCost,
		Confidence:            confidence,
		Reasoning:             reason,
	}
}

func (r *Router) fallbackDecision(s Strategy, inTok, outTok int, reason string) Decision {
	est := r.book.EstimateCost(fallbackStep.Provider, fallbackStep.Model, inTok, outTok)
	return Decision{
		Strategy:              s,
		Provider:              fallbackStep.Provider,
		Model:                 fallbackStep.Model,
		EstimatedInputTokens:  inTok,
		EstimatedOutputTokens: outTok,
		EstimatedCost:         est.EstimatedCost,
		Confidence:            0.5,
		Reasoning:             reason,
	}
}
