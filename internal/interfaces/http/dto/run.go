package dto

import (
	"time"

	"novel2video/internal/domain/entity"
)

// CreateRunRequest 提交运行请求
type CreateRunRequest struct {
	Mode        string `json:"mode" binding:"required,oneof=novel idea"`
	Text        string `json:"text" binding:"required"`
	Style       string `json:"style,omitempty"`
	Requirement string `json:"requirement,omitempty"`
}

// RunResponse 运行响应
type RunResponse struct {
	ID              string     `json:"id"`
	Mode            string     `json:"mode"`
	Style           string     `json:"style,omitempty"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage,omitempty"`
	CompletedStages []string   `json:"completed_stages"`
	WorkDir         string     `json:"work_dir"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Attempts        int        `json:"attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// RunListResponse 运行列表响应
type RunListResponse struct {
	Runs []*RunResponse `json:"runs"`
}

// ToRunResponse 将领域实体转换为响应 DTO
func ToRunResponse(r *entity.Run) *RunResponse {
	if r == nil {
		return nil
	}
	stages := []string(r.CompletedStages)
	if stages == nil {
		stages = []string{}
	}
	return &RunResponse{
		ID:              r.ID,
		Mode:            string(r.Mode),
		Style:           r.Style,
		Status:          string(r.Status),
		Stage:           r.Stage,
		CompletedStages: stages,
		WorkDir:         r.WorkDir,
		ErrorMessage:    r.ErrorMessage,
		Attempts:        r.Attempts,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}

// ToRunListResponse 转换运行列表
func ToRunListResponse(runs []*entity.Run) *RunListResponse {
	out := make([]*RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRunResponse(r))
	}
	return &RunListResponse{Runs: out}
}
