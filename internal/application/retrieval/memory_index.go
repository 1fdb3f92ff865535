package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex 进程内暴力余弦检索，本地运行与测试使用
type MemoryIndex struct {
	mu   sync.RWMutex
	dim  int
	runs map[string]map[string]IndexedChunk
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{runs: make(map[string]map[string]IndexedChunk)}
}

var _ VectorIndex = (*MemoryIndex)(nil)

func (m *MemoryIndex) EnsureCollection(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == 0 {
		m.dim = dim
	}
	if m.dim != dim {
		return fmt.Errorf("%w: index %d, got %d", ErrDimensionMismatch, m.dim, dim)
	}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, runID string, chunks []IndexedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		run = make(map[string]IndexedChunk)
		m.runs[runID] = run
	}
	for _, c := range chunks {
		if m.dim != 0 && len(c.Vector) != m.dim {
			return fmt.Errorf("%w: chunk %s has %d", ErrDimensionMismatch, c.ID, len(c.Vector))
		}
		run[c.ID] = c
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, runID string, query []float32, topK int) ([]VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run := m.runs[runID]
	hits := make([]VectorHit, 0, len(run))
	for _, c := range run {
		hits = append(hits, VectorHit{ID: c.ID, Ordinal: c.Ordinal, Text: c.Text, Score: cosine(query, c.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
