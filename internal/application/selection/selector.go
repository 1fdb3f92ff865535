// Package selection 实现多候选生成与自动评审选优，以及参考素材登记表
package selection

import (
	"context"
	"fmt"
	"path"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"novel2video/internal/application/resume"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	"novel2video/internal/domain/service"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
	"novel2video/pkg/retry"
)

var tracer = otel.Tracer("selection")

// Judgment 评审结果
type Judgment struct {
	BestIndex int    `json:"best_image_index"`
	Reason    string `json:"reason" validate:"required"`
}

// Judge 对候选图片评审，candidates 为本地路径
type Judge interface {
	SelectBest(ctx context.Context, refs []entity.Reference, target string, candidates []string) (Judgment, error)
}

// Request 一次候选生成与选优
type Request struct {
	// Target 目标描述，供评审比较
	Target string
	// Prompt 生成提示词，为空时使用 Target
	Prompt string
	Refs   []entity.Reference
	Size   string
	// CandidateDir 候选目录键，候选保存为 {dir}/{k}.png
	CandidateDir string
	// SaveKey 最终产物键
	SaveKey string
}

// Config 选优配置
type Config struct {
	Candidates int
	Retry      retry.Policy
	JudgeRetry retry.Policy
}

// Selector 候选生成与选优
type Selector struct {
	images service.ImageGenerator
	judge  Judge
	store  repository.CheckpointStore
	// limiter 图像协作方并发上限，跨调用共享
	limiter *semaphore.Weighted
	cfg     Config
}

// NewSelector 创建选优器，limiter 可为空
func NewSelector(images service.ImageGenerator, judge Judge, store repository.CheckpointStore, limiter *semaphore.Weighted, cfg Config) *Selector {
	if cfg.Candidates <= 0 {
		cfg.Candidates = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	if cfg.JudgeRetry.MaxAttempts == 0 {
		cfg.JudgeRetry = cfg.Retry
	}
	return &Selector{images: images, judge: judge, store: store, limiter: limiter, cfg: cfg}
}

// CandidateKey 第 k 个候选的键
func CandidateKey(dir string, k int) string {
	return path.Join(dir, fmt.Sprintf("%d.png", k))
}

// GenerateAndSelect 并行生成 N 个候选，评审后将最优者复制到 SaveKey 并返回该键。
// 已存在的候选直接复用；单个候选失败不影响其余候选。
func (s *Selector) GenerateAndSelect(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "selection.GenerateAndSelect",
		trace.WithAttributes(attribute.String("save_key", req.SaveKey)))
	defer span.End()

	err := resume.Artifact(ctx, s.store, "frame", req.SaveKey, func(ctx context.Context) error {
		candidates := s.generate(ctx, req)
		best, err := s.Select(ctx, req.Refs, req.Target, candidates)
		if err != nil {
			return err
		}
		return s.store.Copy(ctx, best, req.SaveKey)
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return req.SaveKey, nil
}

// generate 返回成功生成的候选键，保持候选序号顺序
func (s *Selector) generate(ctx context.Context, req Request) []string {
	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Target
	}
	refPaths := make([]string, len(req.Refs))
	for i, r := range req.Refs {
		refPaths[i] = r.Path
	}

	ok := make([]bool, s.cfg.Candidates)
	var mu sync.Mutex
	var g errgroup.Group
	for k := 0; k < s.cfg.Candidates; k++ {
		g.Go(func() error {
			key := CandidateKey(req.CandidateDir, k)
			err := resume.Artifact(ctx, s.store, "candidate", key, func(ctx context.Context) error {
				if s.limiter != nil {
					if err := s.limiter.Acquire(ctx, 1); err != nil {
						return err
					}
					defer s.limiter.Release(1)
				}
				data, err := retry.Do(ctx, "image.generate", s.cfg.Retry, func(ctx context.Context) ([]byte, error) {
					return s.images.Generate(ctx, prompt, refPaths, req.Size)
				})
				if err != nil {
					return err
				}
				return s.store.SaveBytes(ctx, key, data)
			})
			if err != nil {
				logger.Warn(ctx, "candidate generation failed", "candidate", key, "error", err.Error())
				return nil
			}
			mu.Lock()
			ok[k] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(ok))
	for k, done := range ok {
		if done {
			out = append(out, CandidateKey(req.CandidateDir, k))
		}
	}
	return out
}

// Select 评审候选并返回最优候选键。候选为空是硬错误；评审序号越界时回退到第一个候选。
func (s *Selector) Select(ctx context.Context, refs []entity.Reference, target string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", apperrors.ErrCandidateEmpty.WithDetail(target)
	}
	if len(candidates) == 1 {
		metrics.CandidateJudgeTotal.WithLabelValues("single").Inc()
		return candidates[0], nil
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = s.store.Path(c)
	}
	j, err := retry.Do(ctx, "judge.best_image", s.cfg.JudgeRetry, func(ctx context.Context) (Judgment, error) {
		j, err := s.judge.SelectBest(ctx, refs, target, paths)
		if err != nil {
			return j, err
		}
		return j, entity.Validate(j)
	})
	if err != nil {
		return "", err
	}

	if j.BestIndex < 0 || j.BestIndex >= len(candidates) {
		metrics.CandidateJudgeTotal.WithLabelValues("defaulted").Inc()
		logger.Warn(ctx, "judge returned out-of-range index, using first candidate",
			"best_index", j.BestIndex, "candidates", len(candidates))
		return candidates[0], nil
	}
	metrics.CandidateJudgeTotal.WithLabelValues("ok").Inc()
	logger.Debug(ctx, "candidate selected", "best_index", j.BestIndex, "reason", j.Reason)
	return candidates[j.BestIndex], nil
}
