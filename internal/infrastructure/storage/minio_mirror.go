// Package storage 提供运行产物的对象存储镜像
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
)

// MinioMirror 将本地产物上传到 S3 兼容存储，对象名为 prefix/key
type MinioMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ service.ArtifactMirror = (*MinioMirror)(nil)

// NewMirror 未启用存储时返回空实现
func NewMirror(ctx context.Context, cfg *config.StorageConfig) (service.ArtifactMirror, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewMinioMirror(ctx, cfg)
}

func NewMinioMirror(ctx context.Context, cfg *config.StorageConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info(ctx, "artifact bucket created", "bucket", cfg.Bucket)
	}

	return &MinioMirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (m *MinioMirror) Mirror(ctx context.Context, key, localPath string) error {
	object := ObjectName(m.prefix, key)
	_, err := m.client.FPutObject(ctx, m.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s: %w", key, err)
	}
	logger.Debug(ctx, "artifact mirrored", "object", object)
	return nil
}

// ObjectName 规范化对象名：统一正斜杠，去掉前导斜杠
func ObjectName(prefix, key string) string {
	key = strings.TrimLeft(filepath.ToSlash(key), "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Noop 空镜像
type Noop struct{}

func (Noop) Mirror(context.Context, string, string) error { return nil }
