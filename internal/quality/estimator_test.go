package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/classify"
)

func signal(t *testing.T, r Report, name string) Signal {
	t.Helper()
	for _, s := range r.Signals {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("signal %q not found", name)
	return Signal{}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestWeightsSumToOne(t *testing.T) {
	e := NewEstimator()
	r := e.Evaluate(Response{Content: words(200)}, classify.Query{Complexity: classify.Simple})

	var total float64
	for _, s := range r.Signals {
		total += s.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	require.Len(t, r.Signals, 6)
}

func TestCitationQuality(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple}

	cites := func(urls ...string) Response {
		return Response{Content: words(200), Citations: urls}
	}

	// Search provider with no sources scores low; a chat model does not.
	r := e.Evaluate(Response{Content: words(200), Provider: "perplexity"}, q)
	assert.Equal(t, 3.0, signal(t, r, "citationQuality").Score)

	r = e.Evaluate(Response{Content: words(200), Provider: "openai"}, q)
	assert.Equal(t, 6.0, signal(t, r, "citationQuality").Score)

	// 2-5 citations from distinct hosts earns the diversity bonus.
	r = e.Evaluate(cites("https://a.com/x", "https://b.com/y", "https://c.com/z"), q)
	assert.Equal(t, 9.5, signal(t, r, "citationQuality").Score)

	// Same host three times: no bonus.
	r = e.Evaluate(cites("https://a.com/1", "https://a.com/2", "https://a.com/3"), q)
	assert.Equal(t, 9.0, signal(t, r, "citationQuality").Score)

	// Citation dumps score down.
	many := make([]string, 12)
	for i := range many {
		many[i] = "https://a.com/x"
	}
	r = e.Evaluate(cites(many...), q)
	assert.Equal(t, 6.0, signal(t, r, "citationQuality").Score)
}

func TestRefusalShortCircuits(t *testing.T) {
	e := NewEstimator()
	r := e.Evaluate(Response{Content: "I'm unable to help with that request."},
		classify.Query{Complexity: classify.Simple})

	assert.Equal(t, 1.0, signal(t, r, "confidenceLanguage").Score)
}

func TestConfidenceLanguageBalance(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple}

	confident := e.Evaluate(Response{Content: "This is definitely correct. Clearly, precisely so. " + words(200)}, q)
	hedging := e.Evaluate(Response{Content: "Maybe, perhaps. It might be. Possibly not sure. " + words(200)}, q)

	assert.Greater(t,
		signal(t, confident, "confidenceLanguage").Score,
		signal(t, hedging, "confidenceLanguage").Score)
}

func TestCodeIntentWithoutCodeBlockPenalized(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Medium, Intent: classify.IntentCode}

	plain := e.Evaluate(Response{Content: words(600)}, q)
	withCode := e.Evaluate(Response{Content: words(580) + "\n```go\nfunc main() {}\n```\n"}, q)

	assert.Greater(t,
		signal(t, withCode, "structuralCompleteness").Score,
		signal(t, plain, "structuralCompleteness").Score)
}

func TestLengthAppropriateness(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple}

	short := e.Evaluate(Response{Content: words(10)}, q)
	ideal := e.Evaluate(Response{Content: words(200)}, q)
	long := e.Evaluate(Response{Content: words(3000)}, q)

	assert.Equal(t, 10.0, signal(t, ideal, "lengthAppropriateness").Score)
	assert.Less(t, signal(t, short, "lengthAppropriateness").Score, 7.0)
	assert.GreaterOrEqual(t, signal(t, short, "lengthAppropriateness").Score, 2.0)
	assert.GreaterOrEqual(t, signal(t, long, "lengthAppropriateness").Score, 4.0)
}

func TestLatencyBands(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple} // 2000ms baseline

	cases := map[int64]float64{900: 10, 1800: 9, 3500: 6, 9000: 3, 0: 7}
	for ms, want := range cases {
		r := e.Evaluate(Response{Content: words(200), ResponseTimeMs: ms}, q)
		assert.Equal(t, want, signal(t, r, "latencyVsExpected").Score, "latency %dms", ms)
	}
}

func TestTokenEfficiency(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple}

	cases := []struct {
		in, out int
		want    float64
	}{
		{100, 30, 4},  // terse
		{100, 300, 9}, // healthy
		{100, 700, 7}, // verbose
		{100, 2000, 5},
		{0, 500, 5}, // unknown
	}
	for _, c := range cases {
		r := e.Evaluate(Response{Content: words(200), InputTokens: c.in, OutputTokens: c.out}, q)
		assert.Equal(t, c.want, signal(t, r, "tokenEfficiency").Score, "in=%d out=%d", c.in, c.out)
	}
}

func TestWellStructuredCreativeGradesAtLeastB(t *testing.T) {
	e := NewEstimator()
	q := classify.Query{Complexity: classify.Simple, Intent: classify.IntentCreative}

	content := "# Ocean at Sunset\n\n" +
		"**A poem** in three stanzas.\n\n" +
		"- waves\n- light\n\n" +
		"1. first stanza\n\n" +
		"```\ngolden water\n```\n\n" +
		words(180)

	r := e.Evaluate(Response{Content: content, Provider: "openai", ResponseTimeMs: 900,
		InputTokens: 20, OutputTokens: 80}, q)

	assert.GreaterOrEqual(t, r.OverallScore, 7.0)
	assert.Contains(t, []string{"A", "B"}, r.Grade)
}

func TestRecommendationBarsByComplexity(t *testing.T) {
	cases := []struct {
		complexity classify.Complexity
		score      float64
		want       Recommendation
	}{
		{classify.Simple, 6.5, Accept},
		{classify.Simple, 4.0, Escalate},
		{classify.Simple, 2.0, Reject},
		{classify.Medium, 6.5, Escalate},
		{classify.Medium, 7.5, Accept},
		{classify.Complex, 7.5, Escalate},
		{classify.Complex, 8.2, Accept},
		{classify.Complex, 4.0, Reject},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, recommend(c.score, c.complexity), "%s/%.1f", c.complexity, c.score)
	}
}

func TestConfidenceShrinksWithDisagreement(t *testing.T) {
	agree := confidence([]Signal{{Score: 7}, {Score: 7}, {Score: 7}, {Score: 7}, {Score: 7}, {Score: 7}})
	disagree := confidence([]Signal{{Score: 1}, {Score: 10}, {Score: 1}, {Score: 10}, {Score: 1}, {Score: 10}})

	assert.Equal(t, 1.0, agree)
	assert.Less(t, disagree, agree)
	assert.GreaterOrEqual(t, disagree, 0.2)
}

func TestEvaluateIsPure(t *testing.T) {
	e := NewEstimator()
	resp := Response{Content: words(300), Provider: "openai", ResponseTimeMs: 1500, InputTokens: 50, OutputTokens: 200}
	q := classify.Query{Complexity: classify.Medium, Intent: classify.IntentChat}

	assert.Equal(t, e.Evaluate(resp, q), e.Evaluate(resp, q))
}
