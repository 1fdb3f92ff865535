// Package retrieval 构建小说知识库，并为每个事件检索、重排相关片段
package retrieval

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel2video/internal/application/textsplit"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
	"novel2video/pkg/retry"
)

var tracer = otel.Tracer("retrieval")

// Config 知识库配置
type Config struct {
	ChunkSize int
	Overlap   int
	TopK      int
	// RerankTopN 每步重排保留条数
	RerankTopN int
	Threshold  float64
	Retry      retry.Policy
}

func (c *Config) withDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 512
	}
	if c.Overlap <= 0 || c.Overlap >= c.ChunkSize {
		c.Overlap = 128
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.RerankTopN <= 0 {
		c.RerankTopN = 10
	}
	if c.Threshold == 0 {
		c.Threshold = 0.7
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.Default()
	}
}

// KnowledgeBase 知识库，reranker 为空表示关闭重排
type KnowledgeBase struct {
	embedder *CachedEmbedder
	index    VectorIndex
	reranker service.Reranker
	cfg      Config
}

// NewKnowledgeBase 创建知识库
func NewKnowledgeBase(embedder *CachedEmbedder, index VectorIndex, reranker service.Reranker, cfg Config) *KnowledgeBase {
	cfg.withDefaults()
	return &KnowledgeBase{embedder: embedder, index: index, reranker: reranker, cfg: cfg}
}

// Build 切分原文、向量化并写入索引。向量经缓存，重复构建只写入索引。
func (kb *KnowledgeBase) Build(ctx context.Context, runID, text string) (*Index, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Build", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	if kb.index == nil {
		return nil, ErrVectorDisabled
	}
	chunks, err := textsplit.Split(text, kb.cfg.ChunkSize, kb.cfg.Overlap)
	if err != nil {
		return nil, err
	}
	idx := &Index{RunID: runID, Chunks: chunks}
	if len(chunks) == 0 {
		return idx, nil
	}

	vectors, err := retry.Do(ctx, "embedding.chunks", kb.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		return kb.embedder.Embed(ctx, chunks)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := kb.index.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	items := make([]IndexedChunk, len(chunks))
	for i, c := range chunks {
		items[i] = IndexedChunk{ID: ChunkID(runID, i), Ordinal: i, Text: c, Vector: vectors[i]}
	}
	if err := kb.index.Upsert(ctx, runID, items); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	logger.Info(ctx, "knowledge base built", "chunks", len(chunks))
	return idx, nil
}

// Query 逐个处理步骤检索：每步召回 top-k，去掉已收录片段，重排后保留不低于阈值者，
// 同一片段多次命中时分数累加；结果按累计分降序。
// 关闭重排时直接使用向量相似度且不做阈值过滤。
func (kb *KnowledgeBase) Query(ctx context.Context, idx *Index, event entity.Event) ([]ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Query",
		trace.WithAttributes(attribute.Int("event", event.Index)))
	defer span.End()

	scores := make(map[string]float64)
	order := make(map[string]int)
	for _, query := range event.RetrievalQueries() {
		qvec, err := retry.Do(ctx, "embedding.query", kb.cfg.Retry, func(ctx context.Context) ([]float32, error) {
			return kb.embedder.EmbedOne(ctx, query)
		})
		if err != nil {
			return nil, err
		}
		hits, err := kb.index.Search(ctx, idx.RunID, qvec, kb.cfg.TopK)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		pool := make([]VectorHit, 0, len(hits))
		for _, h := range hits {
			if _, seen := scores[h.Text]; !seen {
				pool = append(pool, h)
			}
		}
		if len(pool) == 0 {
			continue
		}

		scored, err := kb.rerank(ctx, query, pool)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			if _, ok := order[s.text]; !ok {
				order[s.text] = s.ordinal
			}
			scores[s.text] += s.score
		}
	}

	out := make([]ScoredChunk, 0, len(scores))
	for text, score := range scores {
		out = append(out, ScoredChunk{Text: text, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return order[out[i].Text] < order[out[j].Text]
	})
	span.SetAttributes(attribute.Int("chunks", len(out)))
	return out, nil
}

type stepScore struct {
	text    string
	ordinal int
	score   float64
}

func (kb *KnowledgeBase) rerank(ctx context.Context, query string, pool []VectorHit) ([]stepScore, error) {
	if kb.reranker == nil {
		out := make([]stepScore, len(pool))
		for i, h := range pool {
			out[i] = stepScore{text: h.Text, ordinal: h.Ordinal, score: h.Score}
		}
		return out, nil
	}

	docs := make([]string, len(pool))
	for i, h := range pool {
		docs[i] = h.Text
	}
	results, err := retry.Do(ctx, "rerank", kb.cfg.Retry, func(ctx context.Context) ([]service.RerankResult, error) {
		return kb.reranker.Rerank(ctx, query, docs, kb.cfg.RerankTopN)
	})
	if err != nil {
		return nil, err
	}

	out := make([]stepScore, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(pool) || r.Score < kb.cfg.Threshold {
			continue
		}
		h := pool[r.Index]
		out = append(out, stepScore{text: h.Text, ordinal: h.Ordinal, score: r.Score})
	}
	return out, nil
}
