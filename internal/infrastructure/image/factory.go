package image

import (
	"context"
	"fmt"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
)

// New 按配置选择图像后端
func New(ctx context.Context, cfg *config.ImageConfig) (service.ImageGenerator, error) {
	switch cfg.Backend {
	case "", "openai":
		return NewOpenAIGenerator(cfg), nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported image backend: %s", cfg.Backend)
	}
}
