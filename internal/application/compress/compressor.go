// Package compress 将超长文本切分、逐块压缩后再聚合为一段连贯文本
package compress

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"novel2video/internal/application/resume"
	"novel2video/internal/application/textsplit"
	"novel2video/internal/domain/repository"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
	"novel2video/pkg/retry"
	"novel2video/pkg/tokens"
)

// Summarizer 文本生成协作方
type Summarizer interface {
	// CompressChunk 保留情节、精简文笔、去除非叙事噪音
	CompressChunk(ctx context.Context, chunk string) (string, error)
	// Aggregate 消除相邻压缩块之间的重叠，其余内容原样保留
	Aggregate(ctx context.Context, chunks []string) (string, error)
}

// Config 压缩配置
type Config struct {
	ChunkSize   int
	Overlap     int
	Concurrency int
	Retry       retry.Policy
	// CountTokens 为空时使用 tiktoken
	CountTokens func(string) int
}

// Compressor 分块压缩器
type Compressor struct {
	summarizer Summarizer
	store      repository.CheckpointStore
	cfg        Config
}

// NewCompressor 创建压缩器。store 为空时不做断点持久化。
func NewCompressor(summarizer Summarizer, store repository.CheckpointStore, cfg Config) *Compressor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 65536
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 8
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	if cfg.CountTokens == nil {
		cfg.CountTokens = tokens.Count
	}
	return &Compressor{summarizer: summarizer, store: store, cfg: cfg}
}

// Split 按配置切分
func (c *Compressor) Split(text string) ([]string, error) {
	return textsplit.Split(text, c.cfg.ChunkSize, c.cfg.Overlap)
}

// Compress 全流程：切分、并发压缩、聚合，每一步的产物都按单元落盘
func (c *Compressor) Compress(ctx context.Context, text string) (string, error) {
	return resume.Unit(ctx, c.store, "compressed", resume.CompressedKey, func(ctx context.Context) (string, error) {
		start := time.Now()

		chunks, err := c.Split(text)
		if err != nil {
			return "", err
		}
		for i, chunk := range chunks {
			if c.store == nil {
				break
			}
			if err := c.store.Save(ctx, resume.ChunkKey(i), chunk); err != nil {
				return "", err
			}
		}
		logger.Info(ctx, "text split", "chunks", len(chunks), "chunk_size", c.cfg.ChunkSize, "overlap", c.cfg.Overlap)

		compressed, err := c.CompressChunks(ctx, chunks)
		if err != nil {
			return "", err
		}

		out, err := c.Aggregate(ctx, compressed)
		if err != nil {
			return "", err
		}

		before, after := c.cfg.CountTokens(text), c.cfg.CountTokens(out)
		if before > 0 {
			metrics.CompressionRatio.Observe(float64(after) / float64(before))
		}
		logger.Info(ctx, "text compressed",
			"tokens_before", before,
			"tokens_after", after,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return out, nil
	})
}

// CompressChunks 并发压缩，结果与输入顺序一致。
// 某块失败不取消其余块，已完成的块照常落盘。
func (c *Compressor) CompressChunks(ctx context.Context, chunks []string) ([]string, error) {
	out := make([]string, len(chunks))
	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	var g errgroup.Group

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			v, err := resume.Unit(ctx, c.store, "chunk", resume.CompressedChunkKey(i), func(ctx context.Context) (string, error) {
				return retry.Do(ctx, "compress.chunk", c.cfg.Retry, func(ctx context.Context) (string, error) {
					return c.summarizer.CompressChunk(ctx, chunk)
				})
			})
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Aggregate 单块原样返回，多块交给协作方消除重叠
func (c *Compressor) Aggregate(ctx context.Context, chunks []string) (string, error) {
	switch len(chunks) {
	case 0:
		return "", nil
	case 1:
		return chunks[0], nil
	}
	return retry.Do(ctx, "compress.aggregate", c.cfg.Retry, func(ctx context.Context) (string, error) {
		return c.summarizer.Aggregate(ctx, chunks)
	})
}
