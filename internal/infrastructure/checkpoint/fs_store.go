// Package checkpoint 提供基于本地文件系统的断点存储与阶段状态
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel2video/internal/domain/repository"
	apperrors "novel2video/pkg/errors"
)

var tracer = otel.Tracer("checkpoint")

// FSStore 以工作目录为根的断点存储。
// string 与 []byte 原样落盘，其余类型按缩进 JSON 序列化，保证产物可直接查看。
type FSStore struct {
	root string
}

var _ repository.CheckpointStore = (*FSStore)(nil)

// NewFSStore 创建存储，root 不存在时自动创建
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("checkpoint root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIOFailure, "create checkpoint root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIOFailure, "resolve checkpoint root")
	}
	return &FSStore{root: abs}, nil
}

// Root 工作目录
func (s *FSStore) Root() string {
	return s.root
}

// Path 键对应的本地路径
func (s *FSStore) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(err, apperrors.CodeIOFailure, "stat checkpoint").WithDetail(key)
}

func (s *FSStore) Load(ctx context.Context, key string, v any) error {
	ctx, span := tracer.Start(ctx, "checkpoint.Load",
		trace.WithAttributes(attribute.String("checkpoint.key", key)))
	defer span.End()

	data, err := s.LoadBytes(ctx, key)
	if err != nil {
		span.RecordError(err)
		return err
	}

	switch out := v.(type) {
	case *string:
		*out = string(data)
		return nil
	case *[]byte:
		*out = data
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "decode checkpoint").WithDetail(key)
	}
	return nil
}

func (s *FSStore) Save(ctx context.Context, key string, v any) error {
	ctx, span := tracer.Start(ctx, "checkpoint.Save",
		trace.WithAttributes(attribute.String("checkpoint.key", key)))
	defer span.End()

	var data []byte
	switch in := v.(type) {
	case string:
		data = []byte(in)
	case []byte:
		data = in
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			span.RecordError(err)
			return apperrors.Wrap(err, apperrors.CodeIOFailure, "encode checkpoint").WithDetail(key)
		}
		data = b
	}
	return s.SaveBytes(ctx, key, data)
}

func (s *FSStore) LoadBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrFileNotFound.WithDetail(key)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeIOFailure, "read checkpoint").WithDetail(key)
	}
	return data, nil
}

// SaveBytes 先写临时文件再 rename，进程中断不会留下半截产物
func (s *FSStore) SaveBytes(ctx context.Context, key string, data []byte) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "create checkpoint dir").WithDetail(key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "create temp file").WithDetail(key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "write checkpoint").WithDetail(key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "close checkpoint").WithDetail(key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "rename checkpoint").WithDetail(key)
	}
	return nil
}

// Copy 复制单元，目标同样原子写入
func (s *FSStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, span := tracer.Start(ctx, "checkpoint.Copy",
		trace.WithAttributes(attribute.String("checkpoint.src", srcKey), attribute.String("checkpoint.dst", dstKey)))
	defer span.End()

	src, err := os.Open(s.Path(srcKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.ErrFileNotFound.WithDetail(srcKey)
		}
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "open source").WithDetail(srcKey)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeIOFailure, "read source").WithDetail(srcKey)
	}
	if err := s.SaveBytes(ctx, dstKey, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}
