package pipeline

import (
	"time"

	"novel2video/internal/application/compress"
	"novel2video/internal/application/selection"
	"novel2video/internal/config"
	"novel2video/pkg/retry"
)

// Limits 各协作方并发上限
type Limits struct {
	Chat      int
	Image     int
	Retrieval int
	Video     int
}

// VideoOptions 视频任务轮询与重试
type VideoOptions struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Attempts     int
	RetryDelay   time.Duration
}

// Config 单次运行配置
type Config struct {
	RunID string
	Style string

	Compress compress.Config
	Limits   Limits
	Retry    retry.Policy

	MaxEvents         int
	MaxScenesPerEvent int
	MaxShotsPerScene  int

	Candidates    int
	PortraitSize  string
	FrameSize     string
	MaxReferences int
	MaxPool       int
	Eviction      selection.Eviction

	Videos bool
	Video  VideoOptions
}

// ConfigFrom 由全局配置生成运行配置
func ConfigFrom(cfg *config.Config, runID string) Config {
	p := cfg.Pipeline
	return Config{
		RunID: runID,
		Style: p.Style,
		Compress: compress.Config{
			ChunkSize:   p.Compress.ChunkSize,
			Overlap:     p.Compress.Overlap,
			Concurrency: p.Concurrency.Chat,
		},
		Limits: Limits{
			Chat:      p.Concurrency.Chat,
			Image:     p.Concurrency.Image,
			Retrieval: p.Concurrency.Retrieval,
			Video:     p.Concurrency.Video,
		},
		Retry: retry.Policy{
			MaxAttempts: p.Retry.Attempts,
			Initial:     p.Retry.Initial,
			Max:         p.Retry.Max,
		},
		MaxEvents:         p.MaxEvents,
		MaxScenesPerEvent: p.MaxScenesPerEvent,
		MaxShotsPerScene:  p.MaxShotsPerScene,
		Candidates:        p.Selection.Candidates,
		PortraitSize:      p.Selection.PortraitSize,
		FrameSize:         p.Selection.FrameSize,
		MaxReferences:     p.Selection.MaxReferences,
		MaxPool:           p.References.MaxPool,
		Eviction:          selection.Eviction(p.References.Eviction),
		Videos:            p.Videos,
		Video: VideoOptions{
			PollInterval: cfg.Video.PollInterval,
			PollTimeout:  cfg.Video.PollTimeout,
			Attempts:     cfg.Video.Attempts,
			RetryDelay:   cfg.Video.RetryDelay,
		},
	}
}

func (c *Config) withDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.Default()
	}
	if c.Compress.Retry.MaxAttempts == 0 {
		c.Compress.Retry = c.Retry
	}
	if c.Limits.Chat <= 0 {
		c.Limits.Chat = 8
	}
	if c.Limits.Image <= 0 {
		c.Limits.Image = 5
	}
	if c.Limits.Retrieval <= 0 {
		c.Limits.Retrieval = 10
	}
	if c.Limits.Video <= 0 {
		c.Limits.Video = 2
	}
	if c.MaxScenesPerEvent <= 0 {
		c.MaxScenesPerEvent = 5
	}
	if c.Candidates <= 0 {
		c.Candidates = 3
	}
	if c.PortraitSize == "" {
		c.PortraitSize = "512x512"
	}
	if c.FrameSize == "" {
		c.FrameSize = "1600x900"
	}
	if c.MaxReferences <= 0 {
		c.MaxReferences = 5
	}
	if c.MaxPool <= 0 {
		c.MaxPool = 8
	}
	if c.Eviction == "" {
		c.Eviction = selection.EvictPinPortraits
	}
	if c.Video.PollInterval <= 0 {
		c.Video.PollInterval = 10 * time.Second
	}
	if c.Video.PollTimeout <= 0 {
		c.Video.PollTimeout = 20 * time.Minute
	}
	if c.Video.Attempts <= 0 {
		c.Video.Attempts = 3
	}
}
