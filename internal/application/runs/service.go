// Package runs 管理流水线运行记录：提交入队、执行与状态跟踪
package runs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	"novel2video/internal/infrastructure/messaging"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/logger"
)

// InputFile 运行输入在工作目录下的文件名
const InputFile = "input.txt"

// Publisher 运行请求入队
type Publisher interface {
	PublishRunRequested(ctx context.Context, req *messaging.RunRequestedMessage) (string, error)
}

// Pipeline 单次运行的执行入口
type Pipeline interface {
	Novel2Video(ctx context.Context, text string) error
	Idea2Video(ctx context.Context, idea, requirement string) error
}

// PipelineFactory 按运行参数创建流水线，onStage 在阶段开始与完成时回调
type PipelineFactory func(runID, workDir, style string, onStage func(ctx context.Context, stage string, done bool)) (Pipeline, error)

// SubmitInput 提交参数
type SubmitInput struct {
	Mode        entity.RunMode `validate:"required,oneof=novel idea"`
	Text        string         `validate:"required"`
	Style       string         `validate:"max=512"`
	Requirement string         `validate:"max=4096"`
}

// Service 运行服务
type Service struct {
	repo      repository.RunRepository
	publisher Publisher
	workRoot  string
	validate  *validator.Validate
	tx        repository.Transactor
}

type noTx struct{}

func (noTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NewService 创建运行服务，workRoot 下每个运行占用 runs/{id}
func NewService(repo repository.RunRepository, publisher Publisher, workRoot string) *Service {
	return &Service{repo: repo, publisher: publisher, workRoot: workRoot, validate: validator.New(), tx: noTx{}}
}

// WithTransactor 结束运行时的重新加载与写回在同一事务内完成
func (s *Service) WithTransactor(tx repository.Transactor) *Service {
	if tx != nil {
		s.tx = tx
	}
	return s
}

// WorkDir 运行的工作目录
func (s *Service) WorkDir(runID string) string {
	return filepath.Join(s.workRoot, "runs", runID)
}

// Submit 落盘输入、创建记录并入队
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*entity.Run, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail(err.Error())
	}

	id := uuid.NewString()
	workDir := s.WorkDir(id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIOFailure, "create work dir")
	}
	inputPath := filepath.Join(workDir, InputFile)
	if err := os.WriteFile(inputPath, []byte(in.Text), 0o644); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIOFailure, "write input")
	}

	run := entity.NewRun(id, in.Mode, inputPath, workDir, in.Style)
	run.Requirement = in.Requirement
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, err
	}

	msgID, err := s.publisher.PublishRunRequested(ctx, &messaging.RunRequestedMessage{
		RunID:       id,
		Mode:        string(in.Mode),
		InputPath:   inputPath,
		WorkDir:     workDir,
		Style:       in.Style,
		Requirement: in.Requirement,
	})
	if err != nil {
		run.Fail("enqueue: " + err.Error())
		_ = s.repo.Update(ctx, run)
		return nil, err
	}
	logger.Info(ctx, "run submitted", "run_id", id, "mode", in.Mode, "message_id", msgID)
	return run, nil
}

// Get 获取运行，不存在返回 ErrRunNotFound
func (s *Service) Get(ctx context.Context, id string) (*entity.Run, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperrors.ErrRunNotFound.WithDetail(id)
	}
	return run, nil
}

// List 分页列出运行
func (s *Service) List(ctx context.Context, filter *repository.RunFilter, page repository.Pagination) (*repository.PagedResult[*entity.Run], error) {
	return s.repo.List(ctx, filter, page)
}

// Execute 执行一次运行请求。已完成的运行直接跳过；失败的运行再次执行时从检查点续跑。
func (s *Service) Execute(ctx context.Context, req *messaging.RunRequestedMessage, factory PipelineFactory) error {
	run, err := s.Get(ctx, req.RunID)
	if err != nil {
		return err
	}
	if run.Status == entity.RunStatusCompleted {
		logger.Info(ctx, "run already completed", "run_id", run.ID)
		return nil
	}

	run.Start()
	if err := s.repo.Update(ctx, run); err != nil {
		return err
	}

	onStage := func(ctx context.Context, stage string, done bool) {
		if err := s.repo.UpdateStage(ctx, run.ID, stage, done); err != nil {
			logger.Warn(ctx, "failed to record stage", "stage", stage, "error", err.Error())
		}
	}
	p, err := factory(run.ID, run.WorkDir, run.Style, onStage)
	if err != nil {
		return s.fail(ctx, run, err)
	}

	input, err := os.ReadFile(run.InputPath)
	if err != nil {
		return s.fail(ctx, run, apperrors.Wrap(err, apperrors.CodeFileNotFound, "read input"))
	}

	switch run.Mode {
	case entity.RunModeIdea:
		err = p.Idea2Video(ctx, string(input), run.Requirement)
	case entity.RunModeNovel:
		err = p.Novel2Video(ctx, string(input))
	default:
		err = apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown run mode %q", run.Mode))
	}
	if err != nil {
		return s.fail(ctx, run, err)
	}

	return s.finish(ctx, run, nil)
}

func (s *Service) fail(ctx context.Context, run *entity.Run, cause error) error {
	if err := s.finish(ctx, run, cause); err != nil {
		logger.Error(ctx, "failed to record run failure", err, "run_id", run.ID)
	}
	return cause
}

// finish 写回终态；阶段进度由回调写入，先重新加载以免覆盖
func (s *Service) finish(ctx context.Context, run *entity.Run, cause error) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if latest, err := s.repo.GetByID(ctx, run.ID); err == nil && latest != nil {
			run.Stage = latest.Stage
			run.CompletedStages = latest.CompletedStages
		}
		if cause != nil {
			run.Fail(cause.Error())
		} else {
			run.Complete()
		}
		return s.repo.Update(ctx, run)
	})
}
