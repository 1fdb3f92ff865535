package retrieval

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/service"
	"novel2video/pkg/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BackOff: &backoff.ZeroBackOff{}}

// keywordEmbedder 以关键词出现次数作为向量分量
type keywordEmbedder struct {
	words []string
	texts atomic.Int32
}

func (e *keywordEmbedder) Model() string { return "keyword-v1" }

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.texts.Add(int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(e.words)+1)
		vec[len(e.words)] = 0.01
		for j, w := range e.words {
			vec[j] = float32(strings.Count(t, w))
		}
		out[i] = vec
	}
	return out, nil
}

// containsReranker 文档包含查询时给高分，否则低分
type containsReranker struct{ calls int }

func (r *containsReranker) Rerank(_ context.Context, query string, docs []string, topN int) ([]service.RerankResult, error) {
	r.calls++
	var out []service.RerankResult
	for i, d := range docs {
		score := 0.1
		if strings.Contains(d, query) {
			score = 0.9
		}
		out = append(out, service.RerankResult{Index: i, Score: score})
	}
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

const novel = "剑客在雨夜出城。\n\n" +
	"城外的破庙里有一盏灯。\n\n" +
	"书生在庙中读书，剑客推门而入。\n\n" +
	"天亮后两人一同上路。"

func TestKnowledgeBaseQuery(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{words: []string{"剑客", "破庙", "书生", "上路"}}
	reranker := &containsReranker{}
	kb := NewKnowledgeBase(NewCachedEmbedder(emb, nil, 2), NewMemoryIndex(), reranker,
		Config{ChunkSize: 20, Overlap: 4, TopK: 3, Retry: fastRetry})

	idx, err := kb.Build(ctx, "run-1", novel)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(idx.Chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(idx.Chunks))
	}

	event := entity.Event{Index: 0, Description: "相遇", ProcessChain: []string{"剑客", "书生"}}
	got, err := kb.Query(ctx, idx, event)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if reranker.calls != 2 {
		t.Errorf("rerank calls = %d, want one per process step", reranker.calls)
	}
	if len(got) == 0 {
		t.Fatal("no chunks retrieved")
	}
	for i, c := range got {
		if c.Score < 0.7 {
			t.Errorf("chunk %d below threshold: %v", i, c.Score)
		}
		if i > 0 && got[i-1].Score < c.Score {
			t.Errorf("results not sorted by score at %d", i)
		}
		if !strings.Contains(c.Text, "剑客") && !strings.Contains(c.Text, "书生") {
			t.Errorf("irrelevant chunk %q", c.Text)
		}
	}
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.Text] {
			t.Errorf("duplicate chunk %q", c.Text)
		}
		seen[c.Text] = true
	}
}

func TestKnowledgeBaseWithoutRerank(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{words: []string{"破庙", "上路"}}
	kb := NewKnowledgeBase(NewCachedEmbedder(emb, nil, 0), NewMemoryIndex(), nil,
		Config{ChunkSize: 20, Overlap: 4, TopK: 1, Retry: fastRetry})

	idx, err := kb.Build(ctx, "run-2", novel)
	if err != nil {
		t.Fatal(err)
	}
	got, err := kb.Query(ctx, idx, entity.Event{Description: "破庙"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !strings.Contains(got[0].Text, "破庙") {
		t.Fatalf("Query = %+v", got)
	}
}

func TestBuildUsesEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{words: []string{"剑客"}}
	cache := NewMemoryCache()
	index := NewMemoryIndex()

	kb := NewKnowledgeBase(NewCachedEmbedder(emb, cache, 0), index, nil, Config{ChunkSize: 20, Overlap: 4, Retry: fastRetry})
	idx, err := kb.Build(ctx, "run-3", novel)
	if err != nil {
		t.Fatal(err)
	}
	first := emb.texts.Load()
	if int(first) != len(idx.Chunks) {
		t.Fatalf("embedded %d texts for %d chunks", first, len(idx.Chunks))
	}

	// 同一原文重建：向量全部命中缓存，索引按主键覆盖
	if _, err := kb.Build(ctx, "run-3", novel); err != nil {
		t.Fatal(err)
	}
	if emb.texts.Load() != first {
		t.Errorf("rebuild embedded %d new texts", emb.texts.Load()-first)
	}
	hits, _ := index.Search(ctx, "run-3", make([]float32, 2), 0)
	if len(hits) != len(idx.Chunks) {
		t.Errorf("index holds %d chunks, want %d", len(hits), len(idx.Chunks))
	}
}

func TestCacheKeyNamespacedByModel(t *testing.T) {
	if CacheKey("a", "text") == CacheKey("b", "text") {
		t.Fatal("cache key must depend on the model")
	}
	if CacheKey("a", "text") != CacheKey("a", "text") {
		t.Fatal("cache key must be deterministic")
	}
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := idx.EnsureCollection(ctx, 4); err == nil {
		t.Fatal("expected dimension mismatch")
	}
	if err := idx.Upsert(ctx, "r", []IndexedChunk{{ID: "x", Vector: []float32{1}}}); err == nil {
		t.Fatal("expected dimension mismatch on upsert")
	}
}
