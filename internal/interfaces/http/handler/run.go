// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"novel2video/internal/application/runs"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	"novel2video/internal/interfaces/http/dto"
)

// RunService 运行服务
type RunService interface {
	Submit(ctx context.Context, in runs.SubmitInput) (*entity.Run, error)
	Get(ctx context.Context, id string) (*entity.Run, error)
	List(ctx context.Context, filter *repository.RunFilter, page repository.Pagination) (*repository.PagedResult[*entity.Run], error)
}

// RunHandler 运行处理器
type RunHandler struct {
	svc RunService
}

// NewRunHandler 创建运行处理器
func NewRunHandler(svc RunService) *RunHandler {
	return &RunHandler{svc: svc}
}

// CreateRun 提交运行
// @Summary 提交运行
// @Description 提交小说或创意，异步执行到视频
// @Tags Runs
// @Accept json
// @Produce json
// @Param body body dto.CreateRunRequest true "运行参数"
// @Success 202 {object} dto.Response[dto.RunResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/runs [post]
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	run, err := h.svc.Submit(c.Request.Context(), runs.SubmitInput{
		Mode:        entity.RunMode(req.Mode),
		Text:        req.Text,
		Style:       req.Style,
		Requirement: req.Requirement,
	})
	if err != nil {
		respondError(c, err, "failed to submit run")
		return
	}
	dto.Accepted(c, dto.ToRunResponse(run))
}

// GetRun 获取运行
// @Summary 获取运行
// @Tags Runs
// @Produce json
// @Param rid path string true "运行 ID"
// @Success 200 {object} dto.Response[dto.RunResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/runs/{rid} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.svc.Get(c.Request.Context(), dto.BindRunID(c))
	if err != nil {
		respondError(c, err, "failed to get run")
		return
	}
	dto.Success(c, dto.ToRunResponse(run))
}

// ListRuns 分页列出运行
// @Summary 运行列表
// @Tags Runs
// @Produce json
// @Param status query string false "状态"
// @Param mode query string false "模式"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.RunListResponse]
// @Router /v1/runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	q, err := dto.BindListRuns(c)
	if err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	page := q.Pagination()
	result, err := h.svc.List(c.Request.Context(), q.Filter(), page)
	if err != nil {
		respondError(c, err, "failed to list runs")
		return
	}
	dto.SuccessWithPage(c, dto.ToRunListResponse(result.Items), dto.NewPageMeta(page.Page, page.PageSize, int(result.Total)))
}
