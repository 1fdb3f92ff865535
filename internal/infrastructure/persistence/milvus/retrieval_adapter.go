package milvus

import (
	"context"
	"fmt"
	"sync/atomic"

	"novel2video/internal/application/retrieval"
)

// VectorIndex 将 Repository 适配为 retrieval.VectorIndex
type VectorIndex struct {
	repo *Repository
	dim  atomic.Int64
}

func NewVectorIndex(repo *Repository) *VectorIndex {
	return &VectorIndex{repo: repo}
}

var _ retrieval.VectorIndex = (*VectorIndex)(nil)

func (v *VectorIndex) EnsureCollection(ctx context.Context, dim int) error {
	if v == nil || v.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	got, err := v.repo.EnsureChunksCollection(ctx, dim)
	if err != nil {
		return err
	}
	if got != dim {
		return fmt.Errorf("%w: collection has %d, embeddings have %d", retrieval.ErrDimensionMismatch, got, dim)
	}
	v.dim.Store(int64(dim))
	return nil
}

func (v *VectorIndex) Upsert(ctx context.Context, runID string, chunks []retrieval.IndexedChunk) error {
	if v == nil || v.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	if len(chunks) == 0 {
		return nil
	}
	dim := int(v.dim.Load())
	if dim == 0 {
		dim = len(chunks[0].Vector)
	}

	rows := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", retrieval.ErrDimensionMismatch, c.ID, len(c.Vector), dim)
		}
		rows = append(rows, &Chunk{
			ID:      c.ID,
			RunID:   runID,
			Ordinal: int64(c.Ordinal),
			Text:    c.Text,
			Vector:  c.Vector,
		})
	}
	return v.repo.UpsertChunks(ctx, dim, rows)
}

func (v *VectorIndex) Search(ctx context.Context, runID string, query []float32, topK int) ([]retrieval.VectorHit, error) {
	if v == nil || v.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	out, err := v.repo.SearchChunks(ctx, runID, query, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]retrieval.VectorHit, 0, len(out))
	for _, r := range out {
		hits = append(hits, retrieval.VectorHit{
			ID:      r.ID,
			Ordinal: int(r.Ordinal),
			Text:    r.Text,
			Score:   float64(r.Score),
		})
	}
	return hits, nil
}
