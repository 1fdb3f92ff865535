package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
)

const defaultEmbeddingBatch = 32

// CachedEmbedder 带内容寻址缓存的向量化。缓存键为 sha256(model + text)，
// 缓存读写失败只记录日志，不影响主流程。
type CachedEmbedder struct {
	embedder  service.Embedder
	cache     EmbeddingCache
	batchSize int
}

// NewCachedEmbedder 创建带缓存的向量化器，cache 为空时使用内存缓存
func NewCachedEmbedder(embedder service.Embedder, cache EmbeddingCache, batchSize int) *CachedEmbedder {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	return &CachedEmbedder{embedder: embedder, cache: cache, batchSize: batchSize}
}

// CacheKey 缓存键
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Embed 返回与 texts 一一对应的向量，仅对未命中的文本分批调用协作方
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.embedder.Model()
	out := make([][]float32, len(texts))

	var missing []int
	for i, t := range texts {
		vec, ok, err := e.cache.Get(ctx, CacheKey(model, t))
		if err != nil {
			logger.Warn(ctx, "embedding cache read failed", "error", err.Error())
		}
		if ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += e.batchSize {
		end := min(start+e.batchSize, len(missing))
		batch := make([]string, 0, end-start)
		for _, i := range missing[start:end] {
			batch = append(batch, texts[i])
		}

		vectors, err := e.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for j, i := range missing[start:end] {
			out[i] = vectors[j]
			if err := e.cache.Set(ctx, CacheKey(model, texts[i]), vectors[j]); err != nil {
				logger.Warn(ctx, "embedding cache write failed", "error", err.Error())
			}
		}
	}
	return out, nil
}

// EmbedOne 单条向量化
func (e *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// MemoryCache 进程内向量缓存，本地运行未配置 Redis 时使用
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]float32
	group singleflight.Group
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]float32)}
}

func (c *MemoryCache) Get(_ context.Context, hash string) ([]float32, bool, error) {
	c.mu.RLock()
	vec, ok := c.items[hash]
	c.mu.RUnlock()
	if ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}
	return vec, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, hash string, vec []float32) error {
	c.mu.Lock()
	c.items[hash] = vec
	c.mu.Unlock()
	return nil
}

// GetOrLoad 未命中时加载，并发请求同一键只加载一次
func (c *MemoryCache) GetOrLoad(ctx context.Context, hash string, loader func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	if vec, ok, _ := c.Get(ctx, hash); ok {
		return vec, nil
	}
	v, err, _ := c.group.Do(hash, func() (any, error) {
		vec, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.Set(ctx, hash, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
