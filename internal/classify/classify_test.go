package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRealtimeSearch(t *testing.T) {
	c := New(DefaultThresholds())

	q := c.Classify("What is the current Bitcoin price?")

	assert.Equal(t, Simple, q.Complexity)
	assert.Equal(t, IntentSearch, q.Intent)
	assert.True(t, q.Realtime)
	assert.True(t, ShouldSkipCache(q))
}

func TestClassifyCreative(t *testing.T) {
	c := New(DefaultThresholds())

	q := c.Classify("Write a poem about the ocean at sunset")

	assert.Equal(t, IntentCreative, q.Intent)
	assert.False(t, q.Realtime)
	assert.True(t, ShouldSkipCache(q))
}

func TestClassifyReasoning(t *testing.T) {
	c := New(DefaultThresholds())

	q := c.Classify("Explain quantum computing")

	assert.Equal(t, IntentReasoning, q.Intent)
	assert.False(t, ShouldSkipCache(q))
}

func TestClassifyComplex(t *testing.T) {
	c := New(DefaultThresholds())

	text := "Design a scalable distributed architecture for a realtime analytics " +
		"pipeline. Compare and contrast at least three approaches, analyze their " +
		"trade-offs in depth, and recommend one. How does each handle concurrency? " +
		"What about performance under load?"
	q := c.Classify(text)

	assert.Equal(t, Complex, q.Complexity)
	assert.Greater(t, q.ComplexityScore, 0.70)
	assert.NotEmpty(t, q.MatchedIndicators)
}

func TestClassifyIsPure(t *testing.T) {
	c := New(DefaultThresholds())

	a := c.Classify("How does garbage collection work in Go?")
	b := c.Classify("How does garbage collection work in Go?")

	assert.Equal(t, a, b)
}

func TestEstimatedTokens(t *testing.T) {
	c := New(DefaultThresholds())

	for _, text := range []string{"hi", "What is DNS?", "Explain quantum computing in detail"} {
		q := c.Classify(text)
		assert.Equal(t, (len(text)+3)/4, q.EstimatedTokens, "text %q", text)
	}
}

func TestComplexityScoreClamped(t *testing.T) {
	c := New(DefaultThresholds())

	// Heavily negative: all-simple indicators on a tiny query.
	q := c.Classify("What is the price?")
	assert.GreaterOrEqual(t, q.ComplexityScore, 0.0)
	assert.LessOrEqual(t, q.ComplexityScore, 1.0)
	assert.Equal(t, Simple, q.Complexity)
}

func TestRealtimeWordBoundary(t *testing.T) {
	c := New(DefaultThresholds())

	// "know" must not trigger the "now" realtime keyword.
	q := c.Classify("I want to know how compilers work")
	assert.False(t, q.Realtime)
}

func TestSuggestTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, SuggestTTL(Query{Realtime: true}))
	assert.Equal(t, 30*time.Minute, SuggestTTL(Query{Intent: IntentSearch}))
	assert.Equal(t, time.Hour, SuggestTTL(Query{Intent: IntentChat}))
}

func TestTTLPolicyOverridesAndFallbacks(t *testing.T) {
	p := TTLPolicy{Realtime: time.Minute, Default: 2 * time.Hour}

	assert.Equal(t, time.Minute, p.For(Query{Realtime: true}))
	assert.Equal(t, 2*time.Hour, p.For(Query{Intent: IntentChat}))

	// The unset search lifetime falls back to the built-in default.
	assert.Equal(t, 30*time.Minute, p.For(Query{Intent: IntentSearch}))
}

func TestConfigurableThresholds(t *testing.T) {
	// With a very low medium cut, even short queries land in medium.
	c := New(Thresholds{Medium: 0.01, Complex: 0.70})
	q := c.Classify("Tell me about dogs")
	assert.Equal(t, Medium, q.Complexity)
}
