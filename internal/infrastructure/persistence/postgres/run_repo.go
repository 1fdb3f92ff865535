package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
)

// RunRepository 运行记录仓储实现
type RunRepository struct {
	client *Client
}

var _ repository.RunRepository = (*RunRepository)(nil)

// NewRunRepository 创建运行记录仓储
func NewRunRepository(client *Client) *RunRepository {
	return &RunRepository{client: client}
}

// Create 创建运行
func (r *RunRepository) Create(ctx context.Context, run *entity.Run) error {
	ctx, span := tracer.Start(ctx, "postgres.RunRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取运行
func (r *RunRepository) GetByID(ctx context.Context, id string) (*entity.Run, error) {
	ctx, span := tracer.Start(ctx, "postgres.RunRepository.GetByID")
	defer span.End()

	var run entity.Run
	if err := getDB(ctx, r.client.db).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// Update 更新运行
func (r *RunRepository) Update(ctx context.Context, run *entity.Run) error {
	ctx, span := tracer.Start(ctx, "postgres.RunRepository.Update")
	defer span.End()

	run.UpdatedAt = time.Now()
	if err := getDB(ctx, r.client.db).Save(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// UpdateStage 更新当前阶段；done 时在同一事务内追加到已完成列表
func (r *RunRepository) UpdateStage(ctx context.Context, id, stage string, done bool) error {
	ctx, span := tracer.Start(ctx, "postgres.RunRepository.UpdateStage")
	defer span.End()

	err := getDB(ctx, r.client.db).Transaction(func(tx *gorm.DB) error {
		var run entity.Run
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&run, "id = ?", id).Error; err != nil {
			return err
		}
		run.MarkStage(stage, done)
		return tx.Model(&entity.Run{}).Where("id = ?", id).Updates(map[string]any{
			"stage":            run.Stage,
			"completed_stages": pq.StringArray(run.CompletedStages),
			"updated_at":       time.Now(),
		}).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update run stage: %w", err)
	}
	return nil
}

// List 分页列出运行
func (r *RunRepository) List(ctx context.Context, filter *repository.RunFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Run], error) {
	ctx, span := tracer.Start(ctx, "postgres.RunRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.Run{})
	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Mode != "" {
			query = query.Where("mode = ?", filter.Mode)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	var runs []*entity.Run
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&runs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return repository.NewPagedResult(runs, total, pagination), nil
}
