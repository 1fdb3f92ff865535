// Package pipeline 编排小说到视频的多阶段流水线：每个工作单元按键断点续跑，
// 单个事件或场景失败只中止其下游，其余部分继续，所有失败在运行结束时汇总返回。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/sync/semaphore"

	"novel2video/internal/application/compress"
	"novel2video/internal/application/merge"
	"novel2video/internal/application/retrieval"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/repository"
	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
	"novel2video/pkg/tracer"
)

// 阶段名，用于阶段状态记录、日志与指标
const (
	StageCompress      = "compress"
	StageEvents        = "events"
	StageScenes        = "scenes"
	StageNovelFold     = "novel_characters"
	StageBasePortraits = "base_portraits"
	StageScriptToVideo = "script_to_video"
	StagePlanScript    = "plan_script"
	StageVideos        = "videos"
)

// Deps 运行依赖
type Deps struct {
	Store  repository.CheckpointStore
	State  repository.StageState
	Agents Agents
	Images service.ImageGenerator
	// Videos 为空时不生成视频
	Videos service.VideoGenerator
	// Knowledge 为空时场景抽取不带原文片段
	Knowledge *retrieval.KnowledgeBase
	Mirror    service.ArtifactMirror
	// OnStage 阶段开始（done=false）与成功结束（done=true）时回调，用于更新运行记录
	OnStage func(ctx context.Context, stage string, done bool)
}

// Pipeline 对应一次运行，不可复用
type Pipeline struct {
	deps   Deps
	cfg    Config
	store  repository.CheckpointStore
	agents Agents

	compressor *compress.Compressor
	merger     *merge.Merger
	selector   *selection.Selector
	retrieval  *semaphore.Weighted
	videos     *videoWorker
}

// New 创建流水线
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Store == nil || deps.Agents == nil || deps.Images == nil {
		return nil, fmt.Errorf("pipeline requires a checkpoint store, agents and an image generator")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("pipeline requires a run id")
	}
	cfg.withDefaults()
	if deps.State == nil {
		deps.State = noState{}
	}

	agents := limitedAgents{Agents: deps.Agents, sem: semaphore.NewWeighted(int64(cfg.Limits.Chat))}
	p := &Pipeline{
		deps:       deps,
		cfg:        cfg,
		store:      deps.Store,
		agents:     agents,
		compressor: compress.NewCompressor(agents, deps.Store, cfg.Compress),
		merger:     merge.NewMerger(agents, agents, cfg.Retry),
		selector: selection.NewSelector(deps.Images, agents, deps.Store,
			semaphore.NewWeighted(int64(cfg.Limits.Image)),
			selection.Config{Candidates: cfg.Candidates, Retry: cfg.Retry}),
		retrieval: semaphore.NewWeighted(int64(cfg.Limits.Retrieval)),
	}
	if deps.Videos != nil && cfg.Videos {
		p.videos = newVideoWorker(deps.Videos, deps.Store, cfg.Video, cfg.Limits.Video, p.mirror)
	}
	return p, nil
}

// stage 执行一个阶段：计时、追踪，成功后记录阶段完成
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx = logger.WithStage(ctx, name)
	if p.deps.OnStage != nil {
		p.deps.OnStage(ctx, name, false)
	}
	ctx, span := tracer.StartStage(ctx, p.cfg.RunID, name)
	start := time.Now()

	err := fn(ctx)
	tracer.End(span, err)

	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.StageDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error(ctx, "stage failed", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	if err := p.deps.State.MarkDone(ctx, name); err != nil {
		logger.Warn(ctx, "failed to record stage state", "error", err.Error())
	}
	if p.deps.OnStage != nil {
		p.deps.OnStage(ctx, name, true)
	}
	logger.Info(ctx, "stage completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// done 阶段是否在先前运行中已完成
func (p *Pipeline) done(ctx context.Context, name string) bool {
	ok, err := p.deps.State.IsDone(ctx, name)
	if err != nil {
		logger.Warn(ctx, "failed to read stage state", "stage", name, "error", err.Error())
		return false
	}
	return ok
}

// mirror 上传到对象存储，失败只记录日志
func (p *Pipeline) mirror(ctx context.Context, key string) {
	if p.deps.Mirror == nil {
		return
	}
	object := path.Join("runs", p.cfg.RunID, key)
	if err := p.deps.Mirror.Mirror(ctx, object, p.store.Path(key)); err != nil {
		logger.Warn(ctx, "artifact mirror failed", "key", key, "error", err.Error())
	}
}

// waitVideos 等待后台视频任务结束
func (p *Pipeline) waitVideos(ctx context.Context) error {
	if p.videos == nil {
		return nil
	}
	return p.stage(ctx, StageVideos, func(ctx context.Context) error {
		return p.videos.Wait()
	})
}

func (p *Pipeline) finish(ctx context.Context, mode string, errs ...error) error {
	err := errors.Join(errs...)
	status := "succeeded"
	if err != nil {
		status = "failed"
		logger.Error(ctx, "run finished with failures", err)
	} else {
		logger.Info(ctx, "run finished")
	}
	metrics.RunsTotal.WithLabelValues(mode, status).Inc()
	return err
}

type noState struct{}

func (noState) IsDone(context.Context, string) (bool, error) { return false, nil }
func (noState) MarkDone(context.Context, string) error       { return nil }
func (noState) Done(context.Context) ([]string, error)       { return nil, nil }
