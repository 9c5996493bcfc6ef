package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/costbook"
)

// fakeBudget is a stand-in BudgetView with scripted state.
type fakeBudget struct {
	emergency bool
	remaining float64
	disabled  map[string]bool
}

func (f *fakeBudget) EmergencyMode() bool { return f.emergency }
func (f *fakeBudget) Status(budget.Period) budget.Status {
	return budget.Status{Period: budget.Daily, Remaining: f.remaining}
}
func (f *fakeBudget) IsProviderDisabled(p string) bool { return f.disabled[p] }

func newTestRouter(bv *fakeBudget) *Router {
	if bv.remaining == 0 {
		bv.remaining = 10
	}
	return NewRouter(costbook.Default(), bv, StrategyCascade, zap.NewNop())
}

func query(c classify.Complexity, intent classify.Intent, realtime bool) classify.Query {
	return classify.Query{
		Text: "test", Complexity: c, Intent: intent, Realtime: realtime, EstimatedTokens: 100,
	}
}

func TestDefaultStrategyIsCascade(t *testing.T) {
	r := newTestRouter(&fakeBudget{})

	d := r.Route(query(classify.Medium, classify.IntentChat, false), "")
	assert.Equal(t, StrategyCascade, d.Strategy)
	require.Len(t, d.Chain, 3)

	// The medium ladder: sonar at 7.0, then gpt-4o-mini at 8.5, then gpt-4o at 9.0.
	assert.Equal(t, ChainStep{Provider: "perplexity", Model: "sonar", QualityThreshold: 7.0}, d.Chain[0])
	assert.Equal(t, ChainStep{Provider: "openai", Model: "gpt-4o-mini", QualityThreshold: 8.5}, d.Chain[1])
	assert.Equal(t, ChainStep{Provider: "openai", Model: "gpt-4o", QualityThreshold: 9.0}, d.Chain[2])

	assert.Equal(t, "perplexity", d.Provider)
	assert.Equal(t, "sonar", d.Model)
	assert.Greater(t, d.EstimatedCost, 0.0)
}

func TestCascadeFloorRaisesQualityBars(t *testing.T) {
	r := NewRouter(costbook.Default(), &fakeBudget{remaining: 10}, StrategyCascade,
		zap.NewNop(), WithCascadeFloor(8.0))

	d := r.Route(query(classify.Simple, classify.IntentChat, false), "")
	require.Len(t, d.Chain, 3)
	for i, step := range d.Chain {
		assert.GreaterOrEqual(t, step.QualityThreshold, 8.0, "step %d", i)
	}

	// Without the option the simple ladder keeps its stock thresholds.
	stock := newTestRouter(&fakeBudget{}).Route(query(classify.Simple, classify.IntentChat, false), "")
	require.Len(t, stock.Chain, 3)
	assert.Equal(t, 6.0, stock.Chain[0].QualityThreshold)
}

func TestCascadeFloorIgnoresOutOfRangeValues(t *testing.T) {
	for _, min := range []float64{0, -1, 11} {
		r := NewRouter(costbook.Default(), &fakeBudget{remaining: 10}, StrategyCascade,
			zap.NewNop(), WithCascadeFloor(min))
		d := r.Route(query(classify.Simple, classify.IntentChat, false), "")
		require.Len(t, d.Chain, 3)
		assert.Equal(t, 6.0, d.Chain[0].QualityThreshold, "min %v", min)
	}
}

func TestCascadeTierOneIsSearchCapable(t *testing.T) {
	r := newTestRouter(&fakeBudget{})
	book := costbook.Default()

	for _, c := range []classify.Complexity{classify.Simple, classify.Medium, classify.Complex} {
		d := r.Route(query(c, classify.IntentSearch, true), "")
		require.NotEmpty(t, d.Chain, "complexity %s", c)
		p, ok := book.Profile(d.Chain[0].Provider, d.Chain[0].Model)
		require.True(t, ok)
		assert.True(t, p.HasCapability(costbook.CapWebSearch), "complexity %s", c)
	}
}

func TestPriorityBranches(t *testing.T) {
	r := newTestRouter(&fakeBudget{})

	cases := []struct {
		name  string
		q     classify.Query
		model string
	}{
		{"realtime search", query(classify.Simple, classify.IntentSearch, true), "sonar"},
		{"reasoning gets cheapest reasoning-capable", query(classify.Complex, classify.IntentReasoning, false), "gpt-4o"},
		{"code gets strongest code model", query(classify.Medium, classify.IntentCode, false), "claude-sonnet-4"},
		{"complex gets highest tier", query(classify.Complex, classify.IntentChat, false), "sonar-pro"},
		{"simple chat gets cheapest suitable", query(classify.Simple, classify.IntentChat, false), "gpt-4o-mini"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := r.Route(tc.q, StrategyPriority)
			assert.Equal(t, StrategyPriority, d.Strategy)
			assert.Equal(t, tc.model, d.Model)
			assert.Empty(t, d.Chain)
		})
	}
}

func TestCostOptimizedPicksCheapest(t *testing.T) {
	r := newTestRouter(&fakeBudget{})

	d := r.Route(query(classify.Simple, classify.IntentChat, false), StrategyCostOptimized)
	assert.Equal(t, "gpt-4o-mini", d.Model)

	// Realtime filters the ranking to search-capable models first.
	d = r.Route(query(classify.Simple, classify.IntentChat, true), StrategyCostOptimized)
	assert.Equal(t, "sonar", d.Model)
}

func TestEmergencyModeOverridesOverride(t *testing.T) {
	r := newTestRouter(&fakeBudget{emergency: true, remaining: 1})

	d := r.Route(query(classify.Simple, classify.IntentChat, false), StrategyPriority)
	assert.Equal(t, StrategyEmergency, d.Strategy)
	assert.Equal(t, "gpt-4o-mini", d.Model)
}

func TestEmergencyFallsBackWhenNothingFits(t *testing.T) {
	r := newTestRouter(&fakeBudget{emergency: true, remaining: 0.0000001})

	d := r.Route(query(classify.Complex, classify.IntentChat, false), "")
	assert.Equal(t, StrategyEmergency, d.Strategy)
	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, "gpt-4o-mini", d.Model)
}

func TestDisabledProviderTriggersReRoute(t *testing.T) {
	r := newTestRouter(&fakeBudget{disabled: map[string]bool{"perplexity": true}, remaining: 10})

	d := r.Route(query(classify.Medium, classify.IntentChat, false), StrategyCascade)
	assert.Equal(t, StrategyEmergency, d.Strategy)
	assert.NotEqual(t, "perplexity", d.Provider)
}

func TestInvalidOverrideFallsBackToDefault(t *testing.T) {
	r := newTestRouter(&fakeBudget{})

	d := r.Route(query(classify.Medium, classify.IntentChat, false), Strategy("bogus"))
	assert.Equal(t, StrategyCascade, d.Strategy)
}

func TestDecisionCarriesTokenEstimates(t *testing.T) {
	r := newTestRouter(&fakeBudget{})

	q := query(classify.Medium, classify.IntentChat, false)
	d := r.Route(q, StrategyCostOptimized)
	assert.Equal(t, 100, d.EstimatedInputTokens)
	assert.Equal(t, costbook.EstimateOutputTokens(classify.Medium, 100), d.EstimatedOutputTokens)
}
