package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubEmbedder maps known texts to fixed vectors so similarity is
// deterministic in tests.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestGetOrGenerateCachesSimilarQueries(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"今天天氣如何":   {1, 0, 0},
		"今天天氣怎麼樣":  {0.95, 0.05, 0},
		"講一個笑話":    {0, 1, 0},
	}}
	c := NewSemanticCache(embedder, zap.NewNop())

	calls := 0
	generate := func(ctx context.Context) (string, error) {
		calls++
		return fmt.Sprintf("答案 %d", calls), nil
	}

	response, fromCache, err := c.GetOrGenerate(context.Background(), "今天天氣如何", generate)
	if err != nil {
		t.Fatalf("GetOrGenerate failed: %v", err)
	}
	if fromCache || response != "答案 1" {
		t.Errorf("expected fresh answer, got %q fromCache=%v", response, fromCache)
	}

	// Near-identical phrasing should hit the cache.
	response, fromCache, err = c.GetOrGenerate(context.Background(), "今天天氣怎麼樣", generate)
	if err != nil {
		t.Fatalf("GetOrGenerate failed: %v", err)
	}
	if !fromCache || response != "答案 1" {
		t.Errorf("expected cache hit with 答案 1, got %q fromCache=%v", response, fromCache)
	}

	// Unrelated query misses.
	_, fromCache, err = c.GetOrGenerate(context.Background(), "講一個笑話", generate)
	if err != nil {
		t.Fatalf("GetOrGenerate failed: %v", err)
	}
	if fromCache {
		t.Error("expected cache miss for unrelated query")
	}
	if calls != 2 {
		t.Errorf("expected 2 generator calls, got %d", calls)
	}
}

func TestGetOrGenerateBypassesCacheOnEmbeddingFailure(t *testing.T) {
	c := NewSemanticCache(&stubEmbedder{err: errors.New("embedding down")}, zap.NewNop())

	response, fromCache, err := c.GetOrGenerate(context.Background(), "q", func(ctx context.Context) (string, error) {
		return "direct", nil
	})
	if err != nil {
		t.Fatalf("GetOrGenerate failed: %v", err)
	}
	if fromCache || response != "direct" {
		t.Errorf("expected direct answer, got %q fromCache=%v", response, fromCache)
	}
	if c.Size() != 0 {
		t.Errorf("nothing should be cached, size=%d", c.Size())
	}
}

func TestGetOrGenerateGeneratorError(t *testing.T) {
	c := NewSemanticCache(&stubEmbedder{vectors: map[string][]float32{}}, zap.NewNop())

	_, _, err := c.GetOrGenerate(context.Background(), "q", func(ctx context.Context) (string, error) {
		return "", errors.New("llm down")
	})
	if err == nil {
		t.Fatal("expected generator error to propagate")
	}
	if c.Size() != 0 {
		t.Errorf("failed generation must not be cached, size=%d", c.Size())
	}
}

func TestEvictionDropsLeastUsed(t *testing.T) {
	vectors := map[string][]float32{}
	for i := 0; i < 4; i++ {
		angle := float64(i) * math.Pi / 2
		vectors[fmt.Sprintf("q%d", i)] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0}
	}
	embedder := &stubEmbedder{vectors: vectors}
	c := NewSemanticCache(embedder, zap.NewNop(), WithMaxSize(2))

	generate := func(ctx context.Context) (string, error) { return "v", nil }

	c.GetOrGenerate(context.Background(), "q0", generate)
	c.GetOrGenerate(context.Background(), "q1", generate)
	// Bump q1's usage so q0 is the eviction candidate.
	c.GetOrGenerate(context.Background(), "q1", generate)

	c.GetOrGenerate(context.Background(), "q2", generate)
	if c.Size() != 2 {
		t.Fatalf("expected 2 slots after eviction, got %d", c.Size())
	}

	// q1 survived, q0 did not.
	_, fromCache, _ := c.GetOrGenerate(context.Background(), "q1", generate)
	if !fromCache {
		t.Error("expected q1 to survive eviction")
	}
	_, fromCache, _ = c.GetOrGenerate(context.Background(), "q0", generate)
	if fromCache {
		t.Error("expected q0 to have been evicted")
	}
}

func TestExpiredSlotsAreIgnored(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	c := NewSemanticCache(embedder, zap.NewNop(), WithTTL(time.Millisecond))

	generate := func(ctx context.Context) (string, error) { return "v", nil }
	c.GetOrGenerate(context.Background(), "q", generate)

	time.Sleep(5 * time.Millisecond)

	_, fromCache, _ := c.GetOrGenerate(context.Background(), "q", generate)
	if fromCache {
		t.Error("expected expired slot to be ignored")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors should score 1, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", got)
	}
}
