package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultMaxCacheSize        = 100
	defaultTTL                 = time.Hour
	topKCandidates             = 3
)

// Embedder turns text into a vector. The Gemini adapter provides one.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type slot struct {
	query      string
	response   string
	embedding  []float32
	createdAt  time.Time
	ttl        time.Duration
	usageCount int
}

func (s *slot) expired(now time.Time) bool {
	return now.Sub(s.createdAt) > s.ttl
}

// SemanticCache answers repeated queries from memory when a new query is
// close enough in embedding space to a cached one. Eviction drops the
// least frequently used slot.
type SemanticCache struct {
	embedder  Embedder
	threshold float64
	maxSize   int
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	slots []*slot
}

var _ repositories.ResponseCache = (*SemanticCache)(nil)

// Option tweaks cache behavior.
type Option func(*SemanticCache)

func WithThreshold(threshold float64) Option {
	return func(c *SemanticCache) { c.threshold = threshold }
}

func WithMaxSize(size int) Option {
	return func(c *SemanticCache) { c.maxSize = size }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *SemanticCache) { c.ttl = ttl }
}

func NewSemanticCache(embedder Embedder, logger *zap.Logger, opts ...Option) *SemanticCache {
	c := &SemanticCache{
		embedder:  embedder,
		threshold: defaultSimilarityThreshold,
		maxSize:   defaultMaxCacheSize,
		ttl:       defaultTTL,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrGenerate returns a cached response for a semantically similar query,
// or calls generate and caches the result. The second return value reports
// whether the cache answered.
func (c *SemanticCache) GetOrGenerate(ctx context.Context, query string, generate func(context.Context) (string, error)) (string, bool, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		// Embedding failure disables the cache for this query but must
		// not block the answer.
		c.logger.Warn("Failed to embed query, bypassing cache", zap.Error(err))
		response, genErr := generate(ctx)
		return response, false, genErr
	}

	if cached, ok := c.lookup(embedding); ok {
		c.logger.Info("Semantic cache hit", zap.String("query", query))
		return cached, true, nil
	}

	response, err := generate(ctx)
	if err != nil {
		return "", false, err
	}

	c.store(query, response, embedding)
	return response, false, nil
}

func (c *SemanticCache) lookup(embedding []float32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.evictExpiredLocked(now)

	type scored struct {
		score float64
		idx   int
	}
	candidates := make([]scored, 0, len(c.slots))
	for i, s := range c.slots {
		candidates = append(candidates, scored{cosineSimilarity(embedding, s.embedding), i})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, cand := range candidates[:min(topKCandidates, len(candidates))] {
		if cand.score >= c.threshold {
			c.slots[cand.idx].usageCount++
			return c.slots[cand.idx].response, true
		}
	}
	return "", false
}

func (c *SemanticCache) store(query, response string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.slots) >= c.maxSize {
		sort.Slice(c.slots, func(i, j int) bool {
			return c.slots[i].usageCount < c.slots[j].usageCount
		})
		c.slots = c.slots[1:]
	}

	c.slots = append(c.slots, &slot{
		query:     query,
		response:  response,
		embedding: embedding,
		createdAt: time.Now(),
		ttl:       c.ttl,
	})
}

func (c *SemanticCache) evictExpiredLocked(now time.Time) {
	kept := c.slots[:0]
	for _, s := range c.slots {
		if !s.expired(now) {
			kept = append(kept, s)
		}
	}
	c.slots = kept
}

// Size reports the number of live cache slots.
func (c *SemanticCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
