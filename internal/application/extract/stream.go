// Package extract 实现顺序抽取：每次以完整历史为上下文请求下一个单元，直到单元标记为最后一个
package extract

import (
	"context"
	"fmt"
	"io"

	"novel2video/internal/application/resume"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/retry"
)

// Generator 依据已抽取历史生成下一个单元。history 为只读快照。
type Generator[T entity.Unit] func(ctx context.Context, history []T) (T, error)

// Options 抽取选项
type Options struct {
	// Kind 单元类别，用于日志与指标
	Kind string
	// MaxUnits 序列长度上限，0 表示不限
	MaxUnits int
	Retry    retry.Policy
	// Store 与 Key 同时设置时逐单元断点续跑
	Store repository.CheckpointStore
	Key   func(pos int) string
}

// Stream 惰性、有限、不可重启的单元序列，以 IsLast 单元结束
type Stream[T entity.Unit] struct {
	gen     Generator[T]
	opts    Options
	history []T
	done    bool
}

// checker 带交叉约束的单元
type checker interface {
	Check() error
}

// NewStream 创建抽取流
func NewStream[T entity.Unit](gen Generator[T], opts Options) *Stream[T] {
	if opts.Kind == "" {
		opts.Kind = "unit"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	return &Stream[T]{gen: gen, opts: opts}
}

// Next 返回下一个单元；序列结束后返回 io.EOF。
// 失败时序列不前进，可以再次调用 Next 重试同一位置。
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if s.done {
		return zero, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	pos := len(s.history)
	if s.opts.MaxUnits > 0 && pos >= s.opts.MaxUnits {
		return zero, apperrors.ErrSchemaViolation.WithDetail(
			fmt.Sprintf("%s sequence exceeded %d units without a last unit", s.opts.Kind, s.opts.MaxUnits))
	}

	history := make([]T, pos)
	copy(history, s.history)

	compute := func(ctx context.Context) (T, error) {
		return retry.Do(ctx, "extract."+s.opts.Kind, s.opts.Retry, func(ctx context.Context) (T, error) {
			u, err := s.gen(ctx, history)
			if err != nil {
				return zero, err
			}
			if err := s.check(u, pos); err != nil {
				return zero, err
			}
			return u, nil
		})
	}

	var (
		u   T
		err error
	)
	if s.opts.Store != nil && s.opts.Key != nil {
		u, err = resume.Unit(ctx, s.opts.Store, s.opts.Kind, s.opts.Key(pos), compute)
		if err == nil {
			// 已持久化的单元同样要满足位置约束
			err = s.check(u, pos)
		}
	} else {
		u, err = compute(ctx)
	}
	if err != nil {
		return zero, err
	}

	s.history = append(s.history, u)
	if u.Last() {
		s.done = true
	}
	return u, nil
}

func (s *Stream[T]) check(u T, pos int) error {
	if u.Position() != pos {
		return apperrors.ErrIndexMismatch.WithDetail(
			fmt.Sprintf("%s declared index %d at position %d", s.opts.Kind, u.Position(), pos))
	}
	if err := entity.Validate(u); err != nil {
		return err
	}
	if c, ok := any(u).(checker); ok {
		if err := c.Check(); err != nil {
			return err
		}
	}
	if s.opts.MaxUnits > 0 && pos == s.opts.MaxUnits-1 && !u.Last() {
		return apperrors.ErrSchemaViolation.WithDetail(
			fmt.Sprintf("%s %d must be the last of at most %d units", s.opts.Kind, pos, s.opts.MaxUnits))
	}
	return nil
}

// Collect 耗尽序列并返回全部单元
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	for {
		_, err := s.Next(ctx)
		if err == io.EOF {
			return s.History(), nil
		}
		if err != nil {
			return s.History(), err
		}
	}
}

// History 已抽取单元的副本
func (s *Stream[T]) History() []T {
	out := make([]T, len(s.history))
	copy(out, s.history)
	return out
}

// Done 序列是否已结束
func (s *Stream[T]) Done() bool {
	return s.done
}
