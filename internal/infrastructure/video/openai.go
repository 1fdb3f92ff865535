// Package video 提供异步视频生成协作方实现（OpenAI Videos API）
package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
)

const defaultModel = "sora-2"

// Generator 提交、轮询、下载三段式视频任务。
// 接口只接受一张参考图，首帧作为 input_reference，尾帧仅写入提示词。
type Generator struct {
	client  *openai.Client
	model   string
	seconds string
	size    string
}

var _ service.VideoGenerator = (*Generator)(nil)

func NewGenerator(cfg *config.VideoConfig) *Generator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Generator{
		client:  &client,
		model:   model,
		seconds: cfg.Seconds,
		size:    cfg.Size,
	}
}

func (g *Generator) Submit(ctx context.Context, prompt, firstFrame, lastFrame string) (string, error) {
	params := openai.VideoNewParams{
		Prompt: prompt,
		Model:  openai.VideoModel(g.model),
	}
	if g.seconds != "" {
		params.Seconds = openai.VideoSeconds(g.seconds)
	}
	if g.size != "" {
		params.Size = openai.VideoSize(g.size)
	}
	if firstFrame != "" {
		f, err := os.Open(firstFrame)
		if err != nil {
			return "", fmt.Errorf("open first frame: %w", err)
		}
		defer f.Close()
		params.InputReference = openai.File(f, filepath.Base(firstFrame), "image/png")
	}
	if lastFrame != "" {
		logger.Debug(ctx, "video backend takes a single reference, last frame image not uploaded", "last_frame", lastFrame)
	}

	v, err := g.client.Videos.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("submit video job: %w", err)
	}
	return v.ID, nil
}

func (g *Generator) Poll(ctx context.Context, jobID string) (service.VideoStatus, error) {
	v, err := g.client.Videos.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("poll video job %s: %w", jobID, err)
	}
	return mapStatus(string(v.Status)), nil
}

func (g *Generator) Download(ctx context.Context, jobID, dst string) error {
	resp, err := g.client.Videos.DownloadContent(ctx, jobID, openai.VideoDownloadContentParams{})
	if err != nil {
		return fmt.Errorf("download video %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download video %s: status=%d", jobID, resp.StatusCode)
	}
	return writeFile(dst, resp.Body)
}

func mapStatus(s string) service.VideoStatus {
	switch s {
	case "completed":
		return service.VideoCompleted
	case "failed":
		return service.VideoFailed
	case "in_progress":
		return service.VideoRunning
	default:
		return service.VideoQueued
	}
}

// writeFile 先写临时文件再重命名，中断时不留下半截视频
func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".video-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
