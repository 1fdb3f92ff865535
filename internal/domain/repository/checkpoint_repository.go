package repository

import (
	"context"
)

// CheckpointStore 按单元键持久化流水线产物
// 键为相对路径，如 events/event_0.json；同一键只有一个写者
type CheckpointStore interface {
	// Exists 单元是否已持久化
	Exists(ctx context.Context, key string) (bool, error)

	// Load 读取结构化单元
	Load(ctx context.Context, key string, v any) error

	// Save 写入结构化单元，重复写入相同内容是安全的
	Save(ctx context.Context, key string, v any) error

	// LoadBytes 读取原始字节（文本、图片、视频）
	LoadBytes(ctx context.Context, key string) ([]byte, error)

	// SaveBytes 写入原始字节
	SaveBytes(ctx context.Context, key string, data []byte) error

	// Copy 在存储内复制单元
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Path 单元的本地路径，供需要文件句柄的协作方使用
	Path(key string) string
}

// StageState 粗粒度阶段完成记录，避免恢复时重复扫描目录
type StageState interface {
	IsDone(ctx context.Context, stage string) (bool, error)
	MarkDone(ctx context.Context, stage string) error
	Done(ctx context.Context) ([]string, error)
}
