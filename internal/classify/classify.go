// Package classify derives routing inputs from raw query text. The
// classifier is pure: identical inputs always produce identical outputs and
// no I/O happens on this path.
package classify

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

type Intent string

const (
	IntentSearch    Intent = "search"
	IntentReasoning Intent = "reasoning"
	IntentChat      Intent = "chat"
	IntentCreative  Intent = "creative"
	IntentCode      Intent = "code"
)

// Query is the classification result for a single request. It is immutable
// and discarded once the response is produced.
type Query struct {
	Text              string     `json:"text"`
	Complexity        Complexity `json:"complexity"`
	ComplexityScore   float64    `json:"complexity_score"`
	Intent            Intent     `json:"intent"`
	Realtime          bool       `json:"is_realtime"`
	EstimatedTokens   int        `json:"estimated_tokens"`
	MatchedIndicators []string   `json:"matched_indicators"`
}

// Thresholds are the complexity band cut points: score <= Medium is simple,
// score <= Complex is medium, anything above is complex.
type Thresholds struct {
	Medium  float64
	Complex float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 0.30, Complex: 0.70}
}

type Classifier struct {
	thresholds Thresholds
}

func New(thresholds Thresholds) *Classifier {
	if thresholds.Medium <= 0 || thresholds.Complex <= thresholds.Medium {
		thresholds = DefaultThresholds()
	}
	return &Classifier{thresholds: thresholds}
}

var (
	complexKeywords = []string{
		"architecture", "design a", "implement", "optimize", "trade-off",
		"tradeoff", "scalable", "distributed", "algorithm", "prove", "derive",
		"in depth", "comprehensive", "step by step", "refactor", "concurrency",
		"compare and contrast", "performance",
	}
	mediumKeywords = []string{
		"explain", "how does", "why does", "difference between", "summarize",
		"describe", "what happens", "convert", "translate", "debug",
	}
	simpleKeywords = []string{
		"what is", "who is", "when is", "when did", "define", "meaning of",
		"price", "weather", "capital of",
	}

	searchKeywords = []string{
		"search", "find", "look up", "news", "price", "weather", "stock",
		"score", "who won", "where is",
	}
	reasoningKeywords = []string{
		"why", "explain", "analyze", "prove", "reason", "logic", "compare",
		"evaluate", "how does", "derive",
	}
	creativeKeywords = []string{
		"write a", "poem", "story", "imagine", "compose", "lyrics", "fiction",
		"creative", "brainstorm",
	}
	codeKeywords = []string{
		"code", "function", "bug", "debug", "implement", "compile", "regex",
		"sql", "python", "golang", "javascript", "typescript", "error message",
	}
	realtimeKeywords = []string{
		"today", "latest", "now", "right now", "breaking", "current",
		"currently", "this week", "recent", "live",
	}

	nonWordRe    = regexp.MustCompile(`[^a-z0-9\s]+`)
	listMarkerRe = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s`)
)

// Classify maps raw text to a Query.
func (c *Classifier) Classify(text string) Query {
	norm := strings.ToLower(strings.TrimSpace(text))
	words := wordSet(norm)

	indicators := make([]string, 0, 8)

	score := lengthTerm(estimateTokens(text))

	score += keywordTerm(norm, words, complexKeywords, 0.25, 0.10, "complex", &indicators)
	score += keywordTerm(norm, words, mediumKeywords, 0.15, 0.05, "medium", &indicators)
	score -= keywordTerm(norm, words, simpleKeywords, 0.20, 0.05, "simple", &indicators)

	if countSentences(norm) > 1 {
		score += 0.05
	}
	if strings.Count(text, "?") > 1 {
		score += 0.05
	}
	if listMarkerRe.MatchString(text) {
		score += 0.10
	}

	score = clamp(score, 0, 1)

	realtime := false
	for _, kw := range realtimeKeywords {
		if matchKeyword(norm, words, kw) {
			realtime = true
			indicators = append(indicators, "realtime:"+kw)
		}
	}

	intent := c.pickIntent(norm, words, realtime, &indicators)

	sort.Strings(indicators)

	return Query{
		Text:              text,
		Complexity:        c.band(score),
		ComplexityScore:   score,
		Intent:            intent,
		Realtime:          realtime,
		EstimatedTokens:   estimateTokens(text),
		MatchedIndicators: dedupe(indicators),
	}
}

// ShouldSkipCache reports whether the cache must be bypassed entirely for
// this query: realtime answers go stale immediately and creative output is
// expected to vary between calls.
func ShouldSkipCache(q Query) bool {
	return q.Realtime || q.Intent == IntentCreative
}

// TTLPolicy maps query classes to cache lifetimes. Zero fields fall back to
// the built-in defaults.
type TTLPolicy struct {
	Realtime time.Duration
	Search   time.Duration
	Default  time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Realtime: 5 * time.Minute,
		Search:   30 * time.Minute,
		Default:  time.Hour,
	}
}

// For returns the cache lifetime appropriate for the query class.
func (p TTLPolicy) For(q Query) time.Duration {
	d := DefaultTTLPolicy()
	switch {
	case q.Realtime:
		return orDefault(p.Realtime, d.Realtime)
	case q.Intent == IntentSearch:
		return orDefault(p.Search, d.Search)
	default:
		return orDefault(p.Default, d.Default)
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// SuggestTTL returns the cache lifetime under the default policy.
func SuggestTTL(q Query) time.Duration {
	return TTLPolicy{}.For(q)
}

func (c *Classifier) band(score float64) Complexity {
	switch {
	case score <= c.thresholds.Medium:
		return Simple
	case score <= c.thresholds.Complex:
		return Medium
	default:
		return Complex
	}
}

func (c *Classifier) pickIntent(norm string, words map[string]bool, realtime bool, indicators *[]string) Intent {
	scores := map[Intent]float64{
		// Everything is at least a chat; short messages lean harder that way.
		IntentChat: 0.15,
	}
	if len(norm) < 40 {
		scores[IntentChat] += 0.10
	}

	scoreList := func(intent Intent, list []string, weight float64) {
		for _, kw := range list {
			if matchKeyword(norm, words, kw) {
				scores[intent] += weight
				*indicators = append(*indicators, string(intent)+":"+kw)
			}
		}
	}

	scoreList(IntentSearch, searchKeywords, 0.30)
	scoreList(IntentReasoning, reasoningKeywords, 0.30)
	scoreList(IntentCreative, creativeKeywords, 0.35)
	scoreList(IntentCode, codeKeywords, 0.35)

	if realtime {
		scores[IntentSearch] += 0.60
	}

	best, bestScore := IntentChat, scores[IntentChat]
	// Fixed evaluation order keeps ties deterministic.
	for _, intent := range []Intent{IntentSearch, IntentReasoning, IntentCreative, IntentCode} {
		if scores[intent] > bestScore {
			best, bestScore = intent, scores[intent]
		}
	}
	return best
}

func lengthTerm(tokens int) float64 {
	switch {
	case tokens <= 15:
		return 0.05
	case tokens <= 40:
		return 0.15
	case tokens <= 120:
		return 0.30
	case tokens <= 300:
		return 0.40
	default:
		return 0.50
	}
}

func keywordTerm(norm string, words map[string]bool, list []string, first, rest float64, label string, indicators *[]string) float64 {
	matches := 0
	for _, kw := range list {
		if matchKeyword(norm, words, kw) {
			matches++
			*indicators = append(*indicators, label+":"+kw)
		}
	}
	if matches == 0 {
		return 0
	}
	return first + float64(matches-1)*rest
}

// matchKeyword matches single-word keywords on word boundaries (so "now"
// never matches "know") and phrases or hyphenated terms by substring.
func matchKeyword(norm string, words map[string]bool, kw string) bool {
	if strings.ContainsAny(kw, " -") {
		return strings.Contains(norm, kw)
	}
	return words[kw]
}

func wordSet(norm string) map[string]bool {
	cleaned := nonWordRe.ReplaceAllString(norm, " ")
	set := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		set[w] = true
	}
	return set
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
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

func dedupe(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
