// Package redis 提供 Redis 缓存、阶段状态与消息队列实现
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel2video/internal/config"
)

var tracer = otel.Tracer("redis")

// Client Redis 客户端
type Client struct {
	rdb    redis.UniversalClient
	config *config.RedisConfig
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{rdb: rdb, config: cfg}, nil
}

// NewClientFrom 包装已有连接（测试或共享连接池时使用）
func NewClientFrom(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Redis 获取底层 Redis 客户端
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", result)
	}
	return nil
}

// GetBytes 获取值（带追踪）
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "redis.Get",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	result, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil && !IsNil(err) {
		span.RecordError(err)
	}
	return result, err
}

// Set 设置值（带追踪）
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.Set",
		trace.WithAttributes(
			attribute.String("redis.key", key),
			attribute.Int64("redis.ttl_ms", expiration.Milliseconds()),
		))
	defer span.End()

	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Del 删除键（带追踪）
func (c *Client) Del(ctx context.Context, keys ...string) error {
	ctx, span := tracer.Start(ctx, "redis.Del",
		trace.WithAttributes(attribute.Int("redis.key_count", len(keys))))
	defer span.End()

	err := c.rdb.Del(ctx, keys...).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// HSet 设置哈希字段
func (c *Client) HSet(ctx context.Context, key, field string, value any) error {
	ctx, span := tracer.Start(ctx, "redis.HSet",
		trace.WithAttributes(attribute.String("redis.key", key), attribute.String("redis.field", field)))
	defer span.End()

	err := c.rdb.HSet(ctx, key, field, value).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// HExists 哈希字段是否存在
func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.HExists",
		trace.WithAttributes(attribute.String("redis.key", key), attribute.String("redis.field", field)))
	defer span.End()

	ok, err := c.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		span.RecordError(err)
	}
	return ok, err
}

// HKeys 哈希全部字段
func (c *Client) HKeys(ctx context.Context, key string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "redis.HKeys",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	keys, err := c.rdb.HKeys(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
	}
	return keys, err
}

// IsNil 检查是否为 redis.Nil 错误
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// HIncrBy 哈希字段自增
func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) error {
	ctx, span := tracer.Start(ctx, "redis.HIncrBy",
		trace.WithAttributes(attribute.String("redis.key", key), attribute.String("redis.field", field)))
	defer span.End()

	err := c.rdb.HIncrBy(ctx, key, field, incr).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}
