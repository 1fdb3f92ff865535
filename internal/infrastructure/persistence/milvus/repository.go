// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 片段向量仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchResult 检索结果，Score 为余弦相似度
type SearchResult struct {
	ID      string
	Ordinal int64
	Text    string
	Score   float32
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsureChunksCollection 确保集合与索引可用（不存在则创建），返回集合的向量维度。
// 不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureChunksCollection(ctx context.Context, dim int) (int, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return 0, fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionChunks)
	if err != nil {
		return 0, err
	}
	if !exists {
		if err := r.CreateCollection(ctx, ChunksSchema(dim)); err != nil {
			return 0, err
		}
		if err := r.CreateIndex(ctx, CollectionChunks); err != nil {
			return 0, err
		}
	} else {
		coll, err := r.client.milvus.DescribeCollection(ctx, r.client.CollectionName(CollectionChunks))
		if err != nil {
			return 0, fmt.Errorf("failed to describe collection: %w", err)
		}
		if d := schemaDim(coll.Schema); d != 0 {
			dim = d
		}
	}

	return dim, r.client.LoadCollection(ctx, CollectionChunks)
}

// UpsertChunks 以 id 为主键写入片段
func (r *Repository) UpsertChunks(ctx context.Context, dim int, chunks []*Chunk) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.UpsertChunks",
		trace.WithAttributes(
			attribute.String("run_id", chunks[0].RunID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	ids := make([]string, len(chunks))
	runIDs := make([]string, len(chunks))
	ordinals := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		runIDs[i] = c.RunID
		ordinals[i] = c.Ordinal
		texts[i] = c.Text
		vectors[i] = c.Vector
	}

	_, err := r.client.milvus.Upsert(ctx, r.client.CollectionName(CollectionChunks), "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldRunID, runIDs),
		entity.NewColumnInt64(fieldOrdinal, ordinals),
		entity.NewColumnVarChar(fieldText, texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// SearchChunks 在单次运行的片段内做语义检索
func (r *Repository) SearchChunks(ctx context.Context, runID string, query []float32, topK int) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	ef := r.client.config.SearchEf
	if ef < topK {
		ef = max(topK, 64)
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	filter := fmt.Sprintf(`%s == "%s"`, fieldRunID, escapeExpr(runID))
	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(CollectionChunks),
		nil,
		filter,
		[]string{fieldID, fieldOrdinal, fieldText},
		[]entity.Vector{entity.FloatVector(query)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{Score: result.Scores[i]}
			if col, ok := result.Fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
				sr.ID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldOrdinal).(*entity.ColumnInt64); ok {
				sr.Ordinal = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldText).(*entity.ColumnVarChar); ok {
				sr.Text = col.Data()[i]
			}
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// DeleteRun 删除某次运行的全部片段
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteRun",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	filter := fmt.Sprintf(`%s == "%s"`, fieldRunID, escapeExpr(runID))
	if err := r.client.milvus.Delete(ctx, r.client.CollectionName(CollectionChunks), "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func escapeExpr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
