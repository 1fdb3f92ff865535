// Package resume 实现单元级断点续跑：先查存在性，存在即加载跳过，缺失才计算并立即持久化
package resume

import (
	"context"

	"novel2video/internal/domain/repository"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
)

// Unit 按 key 执行一个工作单元。kind 用于指标分组（chunk/event/scene...）。
// store 为 nil 时不做持久化，直接计算。
func Unit[T any](ctx context.Context, store repository.CheckpointStore, kind, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if store == nil {
		return compute(ctx)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		var v T
		if err := store.Load(ctx, key, &v); err != nil {
			return zero, err
		}
		metrics.UnitTotal.WithLabelValues(kind, "skipped").Inc()
		logger.Debug(ctx, "unit loaded from checkpoint", "kind", kind, "unit", key)
		return v, nil
	}

	ctx = logger.WithUnit(ctx, key)
	v, err := compute(ctx)
	if err != nil {
		metrics.UnitTotal.WithLabelValues(kind, "failed").Inc()
		logger.Error(ctx, "unit failed", err, "kind", kind)
		return zero, err
	}
	if err := store.Save(ctx, key, v); err != nil {
		metrics.UnitTotal.WithLabelValues(kind, "failed").Inc()
		return zero, err
	}
	metrics.UnitTotal.WithLabelValues(kind, "computed").Inc()
	logger.Info(ctx, "unit computed", "kind", kind)
	return v, nil
}

// Artifact 二进制产物单元（图片、视频）：compute 负责自行写入 key，本函数只做存在性判断
func Artifact(ctx context.Context, store repository.CheckpointStore, kind, key string, compute func(ctx context.Context) error) error {
	ok, err := store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		metrics.UnitTotal.WithLabelValues(kind, "skipped").Inc()
		return nil
	}

	ctx = logger.WithUnit(ctx, key)
	if err := compute(ctx); err != nil {
		metrics.UnitTotal.WithLabelValues(kind, "failed").Inc()
		logger.Error(ctx, "unit failed", err, "kind", kind)
		return err
	}
	metrics.UnitTotal.WithLabelValues(kind, "computed").Inc()
	logger.Info(ctx, "unit computed", "kind", kind)
	return nil
}
