package costbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/classify"
)

func TestEstimateIsSumOfBreakdown(t *testing.T) {
	b := Default()

	tokenPairs := [][2]int{{100, 200}, {1000, 4000}, {37, 819}, {0, 0}}
	for _, p := range b.Profiles() {
		for _, pair := range tokenPairs {
			est := b.EstimateCost(p.Provider, p.Model, pair[0], pair[1])
			sum := est.Breakdown.InputCost + est.Breakdown.OutputCost + est.Breakdown.PerRequestCost
			assert.Equal(t, sum, est.EstimatedCost, "%s/%s %v", p.Provider, p.Model, pair)
		}
	}
}

func TestEstimateUnknownModelIsZero(t *testing.T) {
	b := Default()

	est := b.EstimateCost("acme", "gpt-99", 1000, 1000)
	assert.Equal(t, 0.0, est.EstimatedCost)
	assert.Equal(t, "acme", est.Provider)
	assert.Equal(t, "gpt-99", est.Model)
}

func TestEstimateOutputTokens(t *testing.T) {
	tests := []struct {
		complexity classify.Complexity
		inTok      int
		want       int
	}{
		{classify.Simple, 10, 50},    // floor
		{classify.Simple, 60, 120},   // 2x
		{classify.Simple, 500, 200},  // cap
		{classify.Medium, 10, 200},   // floor
		{classify.Medium, 100, 300},  // 3x
		{classify.Medium, 1000, 800}, // cap
		{classify.Complex, 10, 500},  // floor
		{classify.Complex, 200, 800}, // 4x
		{classify.Complex, 5000, 4000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateOutputTokens(tt.complexity, tt.inTok),
			"%s/%d", tt.complexity, tt.inTok)
	}
}

func TestModelsByCostAscending(t *testing.T) {
	b := Default()

	ranked := b.ModelsByCost(classify.Medium, 500, 800)
	require.NotEmpty(t, ranked)

	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].Estimate.EstimatedCost, ranked[i].Estimate.EstimatedCost)
	}
	for _, r := range ranked {
		assert.True(t, r.Profile.SuitableForComplexity(classify.Medium))
	}
}

func TestCheapestWithinBudget(t *testing.T) {
	b := Default()

	p, ok := b.CheapestWithinBudget(classify.Simple, 100, 200, 1.0)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", p.Model)

	_, ok = b.CheapestWithinBudget(classify.Complex, 100000, 4000, 0.000001)
	assert.False(t, ok)
}

func TestCheapestWithCapability(t *testing.T) {
	b := Default()

	p, ok := b.CheapestWithCapability(CapWebSearch, classify.Simple, 100, 200)
	require.True(t, ok)
	assert.Equal(t, "perplexity", p.Provider)
	assert.Equal(t, "sonar", p.Model)

	// No simple-suitable model carries reasoning; falls back to any band.
	p, ok = b.CheapestWithCapability(CapReasoning, classify.Simple, 100, 200)
	require.True(t, ok)
	assert.True(t, p.HasCapability(CapReasoning))
}

func TestHighestTier(t *testing.T) {
	b := Default()

	low, ok := b.CheapestSuitable(classify.Complex, 1000, 2000)
	require.True(t, ok)
	high, ok := b.HighestTier(classify.Complex, 1000, 2000)
	require.True(t, ok)

	lowCost := b.EstimateCost(low.Provider, low.Model, 1000, 2000).EstimatedCost
	highCost := b.EstimateCost(high.Provider, high.Model, 1000, 2000).EstimatedCost
	assert.GreaterOrEqual(t, highCost, lowCost)
}
