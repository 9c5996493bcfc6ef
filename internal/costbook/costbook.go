// Package costbook is the single pricing authority for the gateway. Every
// cost shown to a caller, recorded against a budget, or used for routing is
// derived from the profiles registered here.
package costbook

import (
	"sort"
	"time"

	"github.com/switchyard-ai/switchyard/internal/classify"
)

// Model capabilities referenced by routing.
const (
	CapWebSearch = "web_search"
	CapReasoning = "reasoning"
	CapCode      = "code"
	CapChat      = "chat"
	CapCreative  = "creative"
)

// Profile describes the cost shape of one provider model. Profiles are
// process-lifetime constants.
type Profile struct {
	Provider        string               `json:"provider"`
	Model           string               `json:"model"`
	InputCostPer1K  float64              `json:"input_cost_per_1k"`
	OutputCostPer1K float64              `json:"output_cost_per_1k"`
	PerRequestCost  float64              `json:"per_request_cost"`
	ContextWindow   int                  `json:"context_window"`
	MaxOutputTokens int                  `json:"max_output_tokens"`
	SuitableFor     []classify.Complexity `json:"suitable_for"`
	Capabilities    []string             `json:"capabilities"`
}

func (p Profile) SuitableForComplexity(c classify.Complexity) bool {
	for _, s := range p.SuitableFor {
		if s == c {
			return true
		}
	}
	return false
}

func (p Profile) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Breakdown splits an estimate into its addends. The total is always exactly
// InputCost + OutputCost + PerRequestCost.
type Breakdown struct {
	InputCost      float64 `json:"input_cost"`
	OutputCost     float64 `json:"output_cost"`
	PerRequestCost float64 `json:"per_request_cost"`
}

// Estimate is a pure cost projection for a (model, token count) pair.
type Estimate struct {
	Provider              string    `json:"provider"`
	Model                 string    `json:"model"`
	EstimatedInputTokens  int       `json:"estimated_input_tokens"`
	EstimatedOutputTokens int       `json:"estimated_output_tokens"`
	EstimatedCost         float64   `json:"estimated_cost"`
	Breakdown             Breakdown `json:"breakdown"`
}

// Actual records the real spend of one completed provider call. Records are
// immutable and appended to the budget log.
type Actual struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalCost    float64   `json:"total_cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ranked pairs a profile with its estimate for a given query shape.
type Ranked struct {
	Profile  Profile
	Estimate Estimate
}

type Book struct {
	profiles []Profile
	index    map[string]int
}

func New(profiles ...Profile) *Book {
	b := &Book{
		profiles: profiles,
		index:    make(map[string]int, len(profiles)),
	}
	for i, p := range profiles {
		b.index[p.Provider+"/"+p.Model] = i
	}
	return b
}

// Default returns the built-in registry. Pricing is USD per 1K tokens.
func Default() *Book {
	return New(
		Profile{
			Provider: "perplexity", Model: "sonar",
			InputCostPer1K: 0.001, OutputCostPer1K: 0.001, PerRequestCost: 0.005,
			ContextWindow: 127072, MaxOutputTokens: 4096,
			SuitableFor:  []classify.Complexity{classify.Simple, classify.Medium},
			Capabilities: []string{CapWebSearch, CapChat},
		},
		Profile{
			Provider: "perplexity", Model: "sonar-pro",
			InputCostPer1K: 0.003, OutputCostPer1K: 0.015, PerRequestCost: 0.005,
			ContextWindow: 200000, MaxOutputTokens: 8192,
			SuitableFor:  []classify.Complexity{classify.Medium, classify.Complex},
			Capabilities: []string{CapWebSearch, CapReasoning, CapChat},
		},
		Profile{
			Provider: "openai", Model: "gpt-4o-mini",
			InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006,
			ContextWindow: 128000, MaxOutputTokens: 16384,
			SuitableFor:  []classify.Complexity{classify.Simple, classify.Medium},
			Capabilities: []string{CapChat, CapCode, CapCreative},
		},
		Profile{
			Provider: "openai", Model: "gpt-4o",
			InputCostPer1K: 0.0025, OutputCostPer1K: 0.01,
			ContextWindow: 128000, MaxOutputTokens: 16384,
			SuitableFor:  []classify.Complexity{classify.Medium, classify.Complex},
			Capabilities: []string{CapChat, CapCode, CapCreative, CapReasoning},
		},
		Profile{
			Provider: "openai", Model: "o1-mini",
			InputCostPer1K: 0.003, OutputCostPer1K: 0.012,
			ContextWindow: 128000, MaxOutputTokens: 65536,
			SuitableFor:  []classify.Complexity{classify.Complex},
			Capabilities: []string{CapReasoning},
		},
		Profile{
			Provider: "anthropic", Model: "claude-3-5-haiku",
			InputCostPer1K: 0.0008, OutputCostPer1K: 0.004,
			ContextWindow: 200000, MaxOutputTokens: 8192,
			SuitableFor:  []classify.Complexity{classify.Simple, classify.Medium},
			Capabilities: []string{CapChat, CapCode},
		},
		Profile{
			Provider: "anthropic", Model: "claude-sonnet-4",
			InputCostPer1K: 0.003, OutputCostPer1K: 0.015,
			ContextWindow: 200000, MaxOutputTokens: 64000,
			SuitableFor:  []classify.Complexity{classify.Medium, classify.Complex},
			Capabilities: []string{CapChat, CapCode, CapCreative, CapReasoning},
		},
	)
}

func (b *Book) Profile(provider, model string) (Profile, bool) {
	i, ok := b.index[provider+"/"+model]
	if !ok {
		return Profile{}, false
	}
	return b.profiles[i], true
}

func (b *Book) Profiles() []Profile {
	out := make([]Profile, len(b.profiles))
	copy(out, b.profiles)
	return out
}

// ModelsForProvider lists the registered model names for one provider.
func (b *Book) ModelsForProvider(provider string) []string {
	var out []string
	for _, p := range b.profiles {
		if p.Provider == provider {
			out = append(out, p.Model)
		}
	}
	return out
}

// EstimateCost projects the cost of a call. An unknown model yields a
// zero-cost estimate rather than an error; callers treat it as "free" and
// the budget layer records nothing for it.
func (b *Book) EstimateCost(provider, model string, inTok, outTok int) Estimate {
	p, ok := b.Profile(provider, model)
	if !ok {
		return Estimate{
			Provider:              provider,
			Model:                 model,
			EstimatedInputTokens:  inTok,
			EstimatedOutputTokens: outTok,
		}
	}

	breakdown := Breakdown{
		InputCost:      float64(inTok) / 1000 * p.InputCostPer1K,
		OutputCost:     float64(outTok) / 1000 * p.OutputCostPer1K,
		PerRequestCost: p.PerRequestCost,
	}

	return Estimate{
		Provider:              provider,
		Model:                 model,
		EstimatedInputTokens:  inTok,
		EstimatedOutputTokens: outTok,
		EstimatedCost:         breakdown.InputCost + breakdown.OutputCost + breakdown.PerRequestCost,
		Breakdown:             breakdown,
	}
}

// EstimateOutputTokens projects output length from complexity. The
// multipliers and bands are deliberately coarse; they only need to rank
// models consistently.
func EstimateOutputTokens(c classify.Complexity, inTok int) int {
	switch c {
	case classify.Simple:
		return bound(2*inTok, 50, 200)
	case classify.Medium:
		return bound(3*inTok, 200, 800)
	default:
		return bound(4*inTok, 500, 4000)
	}
}

func bound(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// ModelsByCost ranks the models suitable for a complexity band by ascending
// estimated cost.
func (b *Book) ModelsByCost(c classify.Complexity, inTok, outTok int) []Ranked {
	var out []Ranked
	for _, p := range b.profiles {
		if !p.SuitableForComplexity(c) {
			continue
		}
		out = append(out, Ranked{
			Profile:  p,
			Estimate: b.EstimateCost(p.Provider, p.Model, inTok, outTok),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Estimate.EstimatedCost < out[j].Estimate.EstimatedCost
	})
	return out
}

// CheapestWithinBudget returns the first ranked model whose estimate fits
// the remaining budget, or false when nothing fits.
func (b *Book) CheapestWithinBudget(c classify.Complexity, inTok, outTok int, remaining float64) (Profile, bool) {
	for _, r := range b.ModelsByCost(c, inTok, outTok) {
		if r.Estimate.EstimatedCost <= remaining {
			return r.Profile, true
		}
	}
	return Profile{}, false
}

// CheapestWithCapability returns the cheapest model carrying a capability,
// preferring models suitable for the complexity band.
func (b *Book) CheapestWithCapability(cap string, c classify.Complexity, inTok, outTok int) (Profile, bool) {
	for _, r := range b.ModelsByCost(c, inTok, outTok) {
		if r.Profile.HasCapability(cap) {
			return r.Profile, true
		}
	}
	// Nothing suitable carries it; take the cheapest holder of any band.
	var cheapest Ranked
	found := false
	for _, p := range b.profiles {
		if !p.HasCapability(cap) {
			continue
		}
		est := b.EstimateCost(p.Provider, p.Model, inTok, outTok)
		if !found || est.EstimatedCost < cheapest.Estimate.EstimatedCost {
			cheapest = Ranked{Profile: p, Estimate: est}
			found = true
		}
	}
	if found {
		return cheapest.Profile, true
	}
	return Profile{}, false
}

// HighestTier returns the most expensive model suitable for a band.
func (b *Book) HighestTier(c classify.Complexity, inTok, outTok int) (Profile, bool) {
	ranked := b.ModelsByCost(c, inTok, outTok)
	if len(ranked) == 0 {
		return Profile{}, false
	}
	return ranked[len(ranked)-1].Profile, true
}

// CheapestSuitable returns the cheapest model suitable for a band.
func (b *Book) CheapestSuitable(c classify.Complexity, inTok, outTok int) (Profile, bool) {
	ranked := b.ModelsByCost(c, inTok, outTok)
	if len(ranked) == 0 {
		return Profile{}, false
	}
	return ranked[0].Profile, true
}
