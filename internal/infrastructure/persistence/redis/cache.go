package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"novel2video/pkg/metrics"
)

var cacheTracer = otel.Tracer("redis.cache")

// EmbeddingCache 按内容哈希缓存向量，重复运行同一文本不再调用向量化服务
type EmbeddingCache struct {
	client *Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewEmbeddingCache 创建向量缓存，ttl 为 0 表示永不过期
func NewEmbeddingCache(client *Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, prefix: "emb:", ttl: ttl}
}

// Get 命中返回 true
func (c *EmbeddingCache) Get(ctx context.Context, hash string) ([]float32, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", hash)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, c.prefix+hash).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	return vec, true, nil
}

// Set 写入向量
func (c *EmbeddingCache) Set(ctx context.Context, hash string, vec []float32) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", hash),
			attribute.Int64("cache.ttl_ms", c.ttl.Milliseconds()),
		))
	defer span.End()

	raw, err := json.Marshal(vec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	if err := c.client.rdb.Set(ctx, c.prefix+hash, raw, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetOrLoad 使用 singleflight 合并相同文本的并发向量化请求
func (c *EmbeddingCache) GetOrLoad(ctx context.Context, hash string, loader func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	if vec, ok, err := c.Get(ctx, hash); err == nil && ok {
		return vec, nil
	}

	result, err, shared := c.group.Do(hash, func() (interface{}, error) {
		if vec, ok, err := c.Get(ctx, hash); err == nil && ok {
			return vec, nil
		}
		vec, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		// 缓存写入失败不影响返回结果
		_ = c.Set(ctx, hash, vec)
		return vec, nil
	})
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}
