package wire

import (
	"context"

	"novel2video/internal/config"
	"novel2video/pkg/logger"
	"novel2video/pkg/tracer"
)

// InitObservability 初始化日志与追踪，返回追踪的关闭函数
func InitObservability(ctx context.Context, cfg *config.Config, service string) (func(context.Context) error, error) {
	l := cfg.Observability.Logging
	logger.Init(logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	})

	return tracer.Init(ctx, tracer.Config{
		ServiceName: service,
		Version:     cfg.App.Version,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
}
