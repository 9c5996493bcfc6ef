// Package quality scores responses with a fixed multi-signal rubric. The
// estimator is pure; the cascade executor uses its scores as quality gates.
package quality

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/switchyard-ai/switchyard/internal/classify"
)

type Recommendation string

const (
	Accept   Recommendation = "accept"
	Escalate Recommendation = "escalate"
	Reject   Recommendation = "reject"
)

// Signal is one scored dimension of a report.
type Signal struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// Report is the full scoring result for one response.
type Report struct {
	OverallScore   float64        `json:"overall_score"`
	Signals        []Signal       `json:"signals"`
	Grade          string         `json:"grade"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
}

// Response carries the observable features of a provider response that the
// rubric scores. Zero values mean "unknown" for latency and token counts.
type Response struct {
	Content        string
	Provider       string
	Citations      []string
	ResponseTimeMs int64
	InputTokens    int
	OutputTokens   int
}

// Signal weights; they sum to 1.0.
const (
	weightCitations  = 0.25
	weightConfidence = 0.20
	weightStructure  = 0.20
	weightLength     = 0.15
	weightLatency    = 0.10
	weightTokens     = 0.10
)

var searchProviders = map[string]bool{
	"perplexity": true,
}

var refusalPatterns = []string{
	"i cannot help", "i can't help", "i cannot assist", "i can't assist",
	"i'm unable to", "i am unable to", "i cannot provide", "i can't provide",
	"i won't", "as an ai, i cannot",
}

var highConfidenceMarkers = []string{
	"certainly", "definitely", "clearly", "precisely", "specifically",
	"in fact", "without doubt", "established",
}

var lowConfidenceMarkers = []string{
	"maybe", "perhaps", "might", "possibly", "not sure", "unclear",
	"i think", "i believe", "hard to say", "it depends",
}

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*]\s`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
	boldRe     = regexp.MustCompile(`\*\*[^*]+\*\*`)
)

type lengthBand struct {
	min, max, ideal float64
}

var lengthBands = map[classify.Complexity]lengthBand{
	classify.Simple:  {min: 50, max: 500, ideal: 200},
	classify.Medium:  {min: 150, max: 1500, ideal: 600},
	classify.Complex: {min: 300, max: 4000, ideal: 1500},
}

var latencyBaselineMs = map[classify.Complexity]float64{
	classify.Simple:  2000,
	classify.Medium:  5000,
	classify.Complex: 10000,
}

type Estimator struct{}

func NewEstimator() *Estimator {
	return &Estimator{}
}

// Evaluate scores a response against its classified query.
func (e *Estimator) Evaluate(resp Response, q classify.Query) Report {
	signals := []Signal{
		e.citationQuality(resp),
		e.confidenceLanguage(resp),
		e.structuralCompleteness(resp, q),
		e.lengthAppropriateness(resp, q),
		e.latencyVsExpected(resp, q),
		e.tokenEfficiency(resp),
	}

	var overall float64
	for _, s := range signals {
		overall += s.Weight * s.Score
	}

	return Report{
		OverallScore:   overall,
		Signals:        signals,
		Grade:          grade(overall),
		Confidence:     confidence(signals),
		Recommendation: recommend(overall, q.Complexity),
	}
}

func (e *Estimator) citationQuality(resp Response) Signal {
	n := len(resp.Citations)

	var score float64
	switch {
	case n == 0:
		if searchProviders[resp.Provider] {
			score = 3 // a search provider answering with no sources is suspect
		} else {
			score = 6
		}
	case n == 1:
		score = 6
	case n <= 5:
		score = 9
	case n <= 8:
		score = 7.5
	default:
		score = 6
	}

	if n > 0 {
		hosts := make(map[string]bool)
		for _, c := range resp.Citations {
			if u, err := url.Parse(c); err == nil && u.Host != "" {
				hosts[u.Host] = true
			}
		}
		want := n
		if want > 3 {
			want = 3
		}
		if len(hosts) >= want {
			score += 0.5
		}
	}

	if score > 10 {
		score = 10
	}

	return Signal{Name: "citationQuality", Score: score, Weight: weightCitations,
		Detail: fmt.Sprintf("%d citations", n)}
}

func (e *Estimator) confidenceLanguage(resp Response) Signal {
	content := strings.ToLower(resp.Content)

	for _, p := range refusalPatterns {
		if strings.Contains(content, p) {
			return Signal{Name: "confidenceLanguage", Score: 1, Weight: weightConfidence,
				Detail: "refusal language detected"}
		}
	}

	high := countMatches(content, highConfidenceMarkers)
	low := countMatches(content, lowConfidenceMarkers)

	adjust := 0.5 * float64(high-2*low)
	if adjust < -5 {
		adjust = -5
	}
	if adjust > 3 {
		adjust = 3
	}

	return Signal{Name: "confidenceLanguage", Score: clamp(7+adjust, 0, 10), Weight: weightConfidence,
		Detail: fmt.Sprintf("%d confident, %d hedging markers", high, low)}
}

func (e *Estimator) structuralCompleteness(resp Response, q classify.Query) Signal {
	var credits float64
	if headingRe.MatchString(resp.Content) {
		credits += 1
	}
	if bulletRe.MatchString(resp.Content) {
		credits += 1
	}
	if numberedRe.MatchString(resp.Content) {
		credits += 1
	}
	hasCode := strings.Contains(resp.Content, "```")
	if hasCode {
		credits += 1.5
	}
	if boldRe.MatchString(resp.Content) {
		credits += 0.5
	}
	if len(strings.Split(strings.TrimSpace(resp.Content), "\n\n")) >= 3 {
		credits += 1
	}

	// Rich structure matters more the harder the query is.
	scale := map[classify.Complexity]float64{
		classify.Simple:  0.6,
		classify.Medium:  0.8,
		classify.Complex: 1.0,
	}[q.Complexity]

	score := 5 + credits*scale
	if q.Intent == classify.IntentCode && !hasCode {
		score -= 2
	}

	return Signal{Name: "structuralCompleteness", Score: clamp(score, 0, 10), Weight: weightStructure,
		Detail: fmt.Sprintf("%.1f structure credits", credits)}
}

func (e *Estimator) lengthAppropriateness(resp Response, q classify.Query) Signal {
	band := lengthBands[q.Complexity]
	words := float64(len(strings.Fields(resp.Content)))

	var score float64
	switch {
	case words < band.min:
		score = math.Max(2, words/band.min*7)
	case words > band.max:
		over := words / band.max
		score = math.Max(4, 10-3*(over-1))
	default:
		score = math.Max(7, 10-3*math.Abs(words-band.ideal)/band.ideal)
	}

	return Signal{Name: "lengthAppropriateness", Score: score, Weight: weightLength,
		Detail: fmt.Sprintf("%.0f words", words)}
}

func (e *Estimator) latencyVsExpected(resp Response, q classify.Query) Signal {
	if resp.ResponseTimeMs <= 0 {
		return Signal{Name: "latencyVsExpected", Score: 7, Weight: weightLatency, Detail: "latency unknown"}
	}

	baseline := latencyBaselineMs[q.Complexity]
	ratio := float64(resp.ResponseTimeMs) / baseline

	var score float64
	switch {
	case ratio <= 0.5:
		score = 10
	case ratio <= 1:
		score = 9
	case ratio <= 2:
		score = 6
	default:
		score = 3
	}

	return Signal{Name: "latencyVsExpected", Score: score, Weight: weightLatency,
		Detail: fmt.Sprintf("%.0fms vs %.0fms baseline", float64(resp.ResponseTimeMs), baseline)}
}

func (e *Estimator) tokenEfficiency(resp Response) Signal {
	if resp.InputTokens <= 0 || resp.OutputTokens <= 0 {
		return Signal{Name: "tokenEfficiency", Score: 5, Weight: weightTokens, Detail: "token usage unknown"}
	}

	ratio := float64(resp.OutputTokens) / float64(resp.InputTokens)

	var score float64
	switch {
	case ratio < 0.5:
		score = 4
	case ratio <= 5:
		score = 9
	case ratio <= 10:
		score = 7
	default:
		score = 5
	}

	return Signal{Name: "tokenEfficiency", Score: score, Weight: weightTokens,
		Detail: fmt.Sprintf("out/in ratio %.2f", ratio)}
}

func grade(overall float64) string {
	switch {
	case overall >= 8.5:
		return "A"
	case overall >= 7.0:
		return "B"
	case overall >= 5.0:
		return "C"
	case overall >= 3.0:
		return "D"
	default:
		return "F"
	}
}

// confidence shrinks as the raw signals disagree with each other.
func confidence(signals []Signal) float64 {
	var mean float64
	for _, s := range signals {
		mean += s.Score
	}
	mean /= float64(len(signals))

	var variance float64
	for _, s := range signals {
		d := s.Score - mean
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(len(signals)))

	return clamp(1-sigma/5, 0.2, 1.0)
}

var recommendBars = map[classify.Complexity]struct{ accept, reject float64 }{
	classify.Simple:  {accept: 6, reject: 3},
	classify.Medium:  {accept: 7, reject: 4},
	classify.Complex: {accept: 8, reject: 5},
}

func recommend(overall float64, c classify.Complexity) Recommendation {
	bars, ok := recommendBars[c]
	if !ok {
		bars = recommendBars[classify.Medium]
	}
	switch {
	case overall >= bars.accept:
		return Accept
	case overall < bars.reject:
		return Reject
	default:
		return Escalate
	}
}

func countMatches(content string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(content, m)
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

