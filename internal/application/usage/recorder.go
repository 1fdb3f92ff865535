// Package usage 汇总每次运行的 LLM 用量
package usage

import (
	"context"
	"fmt"
	"strings"

	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
)

// Counter 计数存储，Redis 哈希即可满足
type Counter interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) error
}

// Recorder 按运行累计 token 用量，counter 为空时只写日志
type Recorder struct {
	counter Counter
	prefix  string
}

var _ service.LLMUsageRecorder = (*Recorder)(nil)

// NewRecorder 创建用量记录器
func NewRecorder(counter Counter) *Recorder {
	return &Recorder{counter: counter, prefix: "usage:"}
}

// Key 运行的用量哈希键
func (r *Recorder) Key(runID string) string {
	return r.prefix + runID
}

// Record 记录一次调用
func (r *Recorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	logger.Debug(ctx, "llm usage",
		"workflow", in.Workflow,
		"model", in.Model,
		"prompt_tokens", in.PromptTokens,
		"completion_tokens", in.CompletionTokens,
		"duration_ms", in.DurationMs,
	)

	runID := strings.TrimSpace(in.RunID)
	if r.counter == nil || runID == "" {
		return nil
	}

	key := r.Key(runID)
	fields := map[string]int64{
		"calls":             1,
		"prompt_tokens":     int64(in.PromptTokens),
		"completion_tokens": int64(in.CompletionTokens),
	}
	if w := strings.TrimSpace(in.Workflow); w != "" {
		fields[w+":tokens"] = int64(in.PromptTokens + in.CompletionTokens)
	}
	for field, n := range fields {
		if err := r.counter.HIncrBy(ctx, key, field, n); err != nil {
			return err
		}
	}
	return nil
}
