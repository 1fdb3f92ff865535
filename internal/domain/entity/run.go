package entity

import (
	"time"

	"github.com/lib/pq"
)

// RunMode 运行模式
type RunMode string

const (
	RunModeNovel RunMode = "novel"
	RunModeIdea  RunMode = "idea"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run 一次流水线运行记录
type Run struct {
	ID              string         `json:"id" gorm:"type:uuid;primaryKey"`
	Mode            RunMode        `json:"mode" gorm:"type:varchar(16);not null"`
	Style           string         `json:"style" gorm:"type:text"`
	Requirement     string         `json:"requirement,omitempty" gorm:"type:text"`
	InputPath       string         `json:"input_path" gorm:"type:text;not null"`
	WorkDir         string         `json:"work_dir" gorm:"type:text;not null"`
	Status          RunStatus      `json:"status" gorm:"type:varchar(16);index;not null"`
	Stage           string         `json:"stage,omitempty" gorm:"type:varchar(64)"`
	CompletedStages pq.StringArray `json:"completed_stages" gorm:"type:text[]"`
	ErrorMessage    string         `json:"error_message,omitempty" gorm:"type:text"`
	Attempts        int            `json:"attempts"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// TableName 表名
func (Run) TableName() string { return "pipeline_runs" }

// NewRun 创建待执行的运行
func NewRun(id string, mode RunMode, inputPath, workDir, style string) *Run {
	return &Run{
		ID:        id,
		Mode:      mode,
		Style:     style,
		InputPath: inputPath,
		WorkDir:   workDir,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Start 开始执行
func (r *Run) Start() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.CompletedAt = nil
	r.ErrorMessage = ""
	r.Attempts++
}

// MarkStage 记录当前阶段，完成的阶段去重追加
func (r *Run) MarkStage(stage string, done bool) {
	r.Stage = stage
	if !done {
		return
	}
	for _, s := range r.CompletedStages {
		if s == stage {
			return
		}
	}
	r.CompletedStages = append(r.CompletedStages, stage)
}

// Complete 完成
func (r *Run) Complete() {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.CompletedAt = &now
}

// Fail 失败
func (r *Run) Fail(errMsg string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.ErrorMessage = errMsg
	r.CompletedAt = &now
}

// Finished 是否已结束
func (r *Run) Finished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
