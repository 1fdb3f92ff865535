// Package retry 封装协作方调用的有限次重试
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
)

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	// Constant 为 true 时使用固定间隔 Initial
	Constant bool
	// BackOff 非空时覆盖上述间隔配置（测试注入 ZeroBackOff）
	BackOff backoff.BackOff
}

// Default 默认三次尝试
func Default() Policy {
	return Policy{MaxAttempts: 3, Initial: time.Second, Max: 10 * time.Second}
}

func (p Policy) backOff() backoff.BackOff {
	if p.BackOff != nil {
		return p.BackOff
	}
	if p.Constant {
		return backoff.NewConstantBackOff(p.Initial)
	}
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	return b
}

// Do 执行 fn，最多 MaxAttempts 次；IO 类错误不重试。
// 重试耗尽时返回 ErrStageFailed，原错误仍可通过 errors.Is 匹配。
func Do[T any](ctx context.Context, op string, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.CollaboratorRetries.WithLabelValues(op).Inc()
			logger.Warn(ctx, "collaborator call failed, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"next_in", next.String(),
				"error", err.Error(),
			)
		}),
	)
	if err != nil && !permanent(err) && ctx.Err() == nil {
		return v, apperrors.ErrStageFailed.WithDetail(op).WithError(err)
	}
	return v, err
}

// Run 无返回值版本
func Run(ctx context.Context, op string, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, op, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// permanent 资源/IO 类错误说明环境配置有误，重试无意义
func permanent(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeIOFailure) ||
		apperrors.HasCode(err, apperrors.CodeFileNotFound) ||
		apperrors.HasCode(err, apperrors.CodeCandidateEmpty)
}
