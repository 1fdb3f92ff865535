package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"novel2video/internal/domain/repository"
	"novel2video/internal/infrastructure/persistence/redis"
	"novel2video/pkg/logger"
)

// StateKey 阶段状态文件
const StateKey = "state.json"

type stateFile struct {
	Stages    map[string]time.Time `json:"stages"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// FileStageState 将阶段完成记录保存在工作目录的 state.json 中
type FileStageState struct {
	store repository.CheckpointStore
	mu    sync.Mutex
	state *stateFile
}

var _ repository.StageState = (*FileStageState)(nil)

// NewFileStageState 创建文件阶段状态
func NewFileStageState(store repository.CheckpointStore) *FileStageState {
	return &FileStageState{store: store}
}

func (s *FileStageState) load(ctx context.Context) (*stateFile, error) {
	if s.state != nil {
		return s.state, nil
	}
	st := &stateFile{Stages: map[string]time.Time{}}
	ok, err := s.store.Exists(ctx, StateKey)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := s.store.Load(ctx, StateKey, st); err != nil {
			return nil, err
		}
		if st.Stages == nil {
			st.Stages = map[string]time.Time{}
		}
	}
	s.state = st
	return st, nil
}

func (s *FileStageState) IsDone(ctx context.Context, stage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := st.Stages[stage]
	return ok, nil
}

func (s *FileStageState) MarkDone(ctx context.Context, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := st.Stages[stage]; ok {
		return nil
	}
	now := time.Now().UTC()
	st.Stages[stage] = now
	st.UpdatedAt = now
	return s.store.Save(ctx, StateKey, st)
}

func (s *FileStageState) Done(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.Stages))
	for k := range st.Stages {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// RedisStageState 阶段状态存于 Redis 哈希 run:{id}:stages，同时镜像到 state.json。
// Redis 不可用时读写退回文件。
type RedisStageState struct {
	client *redis.Client
	key    string
	file   *FileStageState
}

var _ repository.StageState = (*RedisStageState)(nil)

// NewRedisStageState 创建 Redis 阶段状态
func NewRedisStageState(client *redis.Client, runID string, store repository.CheckpointStore) *RedisStageState {
	return &RedisStageState{
		client: client,
		key:    "run:" + runID + ":stages",
		file:   NewFileStageState(store),
	}
}

func (s *RedisStageState) IsDone(ctx context.Context, stage string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.key, stage)
	if err != nil {
		logger.Warn(ctx, "stage state redis read failed, using file", "stage", stage, "error", err.Error())
		return s.file.IsDone(ctx, stage)
	}
	if ok {
		return true, nil
	}
	// 本地文件可能比 Redis 新（例如 Redis 被清空）
	return s.file.IsDone(ctx, stage)
}

func (s *RedisStageState) MarkDone(ctx context.Context, stage string) error {
	if err := s.file.MarkDone(ctx, stage); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, stage, time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn(ctx, "stage state redis write failed", "stage", stage, "error", err.Error())
	}
	return nil
}

func (s *RedisStageState) Done(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.key)
	if err != nil {
		return s.file.Done(ctx)
	}
	fileKeys, err := s.file.Done(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys)+len(fileKeys))
	out := make([]string, 0, len(keys)+len(fileKeys))
	for _, k := range append(keys, fileKeys...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
