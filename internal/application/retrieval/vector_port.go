package retrieval

import "context"

// VectorIndex 应用层对向量存储/检索的最小依赖（port），按运行隔离。
// 由基础设施层提供具体实现（Milvus），本包提供内存实现。
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert 以 chunk ID 为主键写入，重复构建同一运行不会产生重复片段
	Upsert(ctx context.Context, runID string, chunks []IndexedChunk) error
	Search(ctx context.Context, runID string, query []float32, topK int) ([]VectorHit, error)
}

// IndexedChunk 待写入的片段
type IndexedChunk struct {
	ID      string
	Ordinal int
	Text    string
	Vector  []float32
}

// VectorHit 检索命中，Score 为余弦相似度
type VectorHit struct {
	ID      string
	Ordinal int
	Text    string
	Score   float64
}

// EmbeddingCache 按内容哈希缓存向量
type EmbeddingCache interface {
	Get(ctx context.Context, hash string) ([]float32, bool, error)
	Set(ctx context.Context, hash string, vec []float32) error
}
