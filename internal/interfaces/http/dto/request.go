// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"github.com/gin-gonic/gin"

	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
)

// ListRunsQuery 运行列表查询参数
type ListRunsQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending running completed failed"`
	Mode     string `form:"mode" binding:"omitempty,oneof=novel idea"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
}

// BindListRuns 绑定并校验查询参数
func BindListRuns(c *gin.Context) (*ListRunsQuery, error) {
	var q ListRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Filter 无过滤条件时返回 nil
func (q *ListRunsQuery) Filter() *repository.RunFilter {
	if q.Status == "" && q.Mode == "" {
		return nil
	}
	return &repository.RunFilter{Status: entity.RunStatus(q.Status), Mode: entity.RunMode(q.Mode)}
}

// Pagination 规范化后的分页参数
func (q *ListRunsQuery) Pagination() repository.Pagination {
	return repository.NewPagination(q.Page, q.PageSize)
}

// BindRunID 从 URI 绑定运行 ID
func BindRunID(c *gin.Context) string {
	return c.Param("rid")
}
