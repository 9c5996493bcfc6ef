package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultSimilarityThreshold = 0.82

// Match is a successful lookup: the entry plus how close the incoming query
// was (1.0 for exact hash matches).
type Match struct {
	Entry      *Entry  `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// Stats is the snapshot served by the cache endpoint.
type Stats struct {
	Entries   int     `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	TotalHits int     `json:"total_hits"`
	Threshold float64 `json:"similarity_threshold"`
}

type SemanticConfig struct {
	SimilarityThreshold float64
	MaxEntries          int
	DefaultTTL          time.Duration
}

// Semantic layers hash lookup and similarity scan over a Store adapter.
// Storage failures never abort a request: lookups degrade to misses, stores
// to no-ops. Lookups and stores serialize behind one lock so the
// read-modify-write on HitCount stays monotonic.
type Semantic struct {
	mu     sync.Mutex
	store  Store
	cfg    SemanticConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewSemantic(store Store, cfg SemanticConfig, logger *zap.Logger) *Semantic {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	return &Semantic{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock substitutes the time source, for tests.
func (s *Semantic) SetClock(now func() time.Time) { s.now = now }

// HashQuery is the exact-match index key: SHA-256 of the lowercased trimmed
// text, truncated to 16 hex characters.
func HashQuery(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])[:16]
}

// Lookup finds a cached response for the query text. A nil Match is a miss.
func (s *Semantic) Lookup(ctx context.Context, text string) *Match {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hash := HashQuery(text)

	entry, err := s.store.Get(ctx, hash)
	if err != nil {
		s.logger.Warn("cache get failed, treating as miss", zap.Error(err))
		return nil
	}
	if entry != nil && !entry.Expired(now) {
		s.bumpHit(ctx, entry)
		return &Match{Entry: entry, Similarity: 1.0}
	}

	entries, err := s.store.Entries(ctx)
	if err != nil {
		s.logger.Warn("cache scan failed, treating as miss", zap.Error(err))
		return nil
	}

	queryVec := countVector(tokenize(text))

	var best *Entry
	bestSim := 0.0
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		sim := cosine(queryVec, countVector(tokenize(e.QueryText)))
		if sim > bestSim {
			best, bestSim = e, sim
		}
	}

	if best == nil || bestSim < s.cfg.SimilarityThreshold {
		return nil
	}

	s.bumpHit(ctx, best)
	return &Match{Entry: best, Similarity: bestSim}
}

func (s *Semantic) bumpHit(ctx context.Context, e *Entry) {
	e.HitCount++
	if err := s.store.Set(ctx, e.QueryHash, e); err != nil {
		s.logger.Warn("cache hit-count persist failed", zap.Error(err))
	}
}

// Put stores a response under the query's hash. A zero ttl uses the default.
func (s *Semantic) Put(ctx context.Context, text, response, provider, model string, cost float64, tokensUsed int, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	now := s.now()

	if err := s.evictIfFull(ctx); err != nil {
		s.logger.Warn("cache store skipped", zap.Error(err))
		return
	}

	hash := HashQuery(text)
	entry := &Entry{
		QueryHash:  hash,
		QueryText:  text,
		Response:   response,
		Provider:   provider,
		Model:      model,
		Cost:       cost,
		TokensUsed: tokensUsed,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.store.Set(ctx, hash, entry); err != nil {
		s.logger.Warn("cache store failed", zap.Error(err))
	}
}

// evictIfFull removes the least valuable entry (fewest hits, then oldest)
// when the store is at capacity.
func (s *Semantic) evictIfFull(ctx context.Context) error {
	size, err := s.store.Size(ctx)
	if err != nil {
		return err
	}
	if size < s.cfg.MaxEntries {
		return nil
	}

	entries, err := s.store.Entries(ctx)
	if err != nil {
		return err
	}

	var victim *Entry
	for _, e := range entries {
		if victim == nil ||
			e.HitCount < victim.HitCount ||
			(e.HitCount == victim.HitCount && e.CreatedAt.Before(victim.CreatedAt)) {
			victim = e
		}
	}
	if victim == nil {
		return nil
	}
	return s.store.Delete(ctx, victim.QueryHash)
}

// PruneExpired deletes every entry whose expiry has passed.
func (s *Semantic) PruneExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Entries(ctx)
	if err != nil {
		s.logger.Warn("cache prune scan failed", zap.Error(err))
		return 0
	}

	now := s.now()
	pruned := 0
	for _, e := range entries {
		if e.Expired(now) {
			if err := s.store.Delete(ctx, e.QueryHash); err != nil {
				s.logger.Warn("cache prune delete failed", zap.Error(err))
				continue
			}
			pruned++
		}
	}
	return pruned
}

// Clear drops everything.
func (s *Semantic) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clear(ctx)
}

// Entries returns a snapshot of the live entries, capped at limit.
func (s *Semantic) Entries(ctx context.Context, limit int) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Entries(ctx)
	if err != nil {
		s.logger.Warn("cache entries scan failed", zap.Error(err))
		return nil
	}

	now := s.now()
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *Semantic) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Entries(ctx)
	if err != nil {
		s.logger.Warn("cache stats scan failed", zap.Error(err))
		return Stats{MaxEntries: s.cfg.MaxEntries, Threshold: s.cfg.SimilarityThreshold}
	}

	now := s.now()
	stats := Stats{MaxEntries: s.cfg.MaxEntries, Threshold: s.cfg.SimilarityThreshold}
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		stats.Entries++
		stats.TotalHits += e.HitCount
	}
	return stats
}

var tokenSplitRe = regexp.MustCompile(`[^\w\s]+`)

// tokenize lowercases, strips non-word characters, splits on whitespace and
// drops single-character tokens.
func tokenize(text string) []string {
	cleaned := tokenSplitRe.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// countVector builds a token-count vector keyed by token. The shared
// vocabulary of a comparison is the union of both vectors' keys; cosine
// handles the union implicitly. This bag-of-words baseline is the seam to
// swap in an embedding service without changing the cache protocol.
func countVector(tokens []string) map[string]float64 {
	vec := make(map[string]float64)
	for _, t := range tokens {
		vec[t]++
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for t, va := range a {
		normA += va * va
		if vb, ok := b[t]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	// Float error can push identical vectors a hair above 1; clamp so the
	// similarity surfaced to clients stays in [0,1].
	return math.Min(dot/(math.Sqrt(normA)*math.Sqrt(normB)), 1)
}
