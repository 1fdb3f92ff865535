// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novel2video/internal/domain/entity"
)

// RunFilter 运行过滤条件
type RunFilter struct {
	Status entity.RunStatus
	Mode   entity.RunMode
}

// RunRepository 运行记录仓储接口
type RunRepository interface {
	// Create 创建运行
	Create(ctx context.Context, run *entity.Run) error

	// GetByID 根据 ID 获取运行，不存在返回 nil
	GetByID(ctx context.Context, id string) (*entity.Run, error)

	// Update 更新运行
	Update(ctx context.Context, run *entity.Run) error

	// UpdateStage 更新阶段进度
	UpdateStage(ctx context.Context, id, stage string, done bool) error

	// List 分页列出运行
	List(ctx context.Context, filter *RunFilter, pagination Pagination) (*PagedResult[*entity.Run], error)
}
