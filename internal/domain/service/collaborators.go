package service

import (
	"context"
)

// ImageGenerator 图像生成协作方。refs 为参考图本地路径，size 形如 1600x900
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, refs []string, size string) ([]byte, error)
}

// VideoStatus 视频任务状态
type VideoStatus string

const (
	VideoQueued    VideoStatus = "queued"
	VideoRunning   VideoStatus = "running"
	VideoCompleted VideoStatus = "completed"
	VideoFailed    VideoStatus = "failed"
)

// Terminal 是否为终态
func (s VideoStatus) Terminal() bool {
	return s == VideoCompleted || s == VideoFailed
}

// VideoGenerator 异步视频生成协作方
type VideoGenerator interface {
	Submit(ctx context.Context, prompt, firstFrame, lastFrame string) (string, error)
	Poll(ctx context.Context, jobID string) (VideoStatus, error)
	Download(ctx context.Context, jobID, dst string) error
}

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model 用于缓存键命名空间
	Model() string
}

// RerankResult 重排结果，Index 指向输入文档
type RerankResult struct {
	Index int
	Score float64
}

// Reranker 文档重排
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]RerankResult, error)
}

// ArtifactMirror 产物镜像（对象存储），未配置时为空实现
type ArtifactMirror interface {
	Mirror(ctx context.Context, key, localPath string) error
}
