// Package embedding 提供文本向量化客户端
package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
)

// EinoEmbedder 基于 Eino OpenAI 兼容适配器的向量化实现
type EinoEmbedder struct {
	embedder einoembedding.Embedder
	model    string
}

var _ service.Embedder = (*EinoEmbedder)(nil)

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*EinoEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	embCfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	}
	if cfg.Dimension > 0 {
		dim := cfg.Dimension
		embCfg.Dimensions = &dim
	}
	embedder, err := openai.NewEmbedder(ctx, embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return &EinoEmbedder{embedder: embedder, model: cfg.Model}, nil
}

// Model 模型名，作为缓存命名空间
func (e *EinoEmbedder) Model() string { return e.model }

// Embed 向量化并转换为 float32
func (e *EinoEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx = service.WithWorkflowProvider(ctx, "embedding", e.model)
	v64, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(v64) != len(texts) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(v64), len(texts))
	}
	out := make([][]float32, len(v64))
	for i, vec := range v64 {
		f := make([]float32, len(vec))
		for j, x := range vec {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}
