// Package wire 组装流水线依赖：配置到各协作方、检索、存储与运行级检查点
package wire

import (
	"context"
	"fmt"
	"path/filepath"

	"novel2video/internal/application/pipeline"
	"novel2video/internal/application/retrieval"
	"novel2video/internal/application/usage"
	"novel2video/internal/config"
	"novel2video/internal/domain/repository"
	"novel2video/internal/domain/service"
	"novel2video/internal/infrastructure/checkpoint"
	einocallback "novel2video/internal/infrastructure/eino/callback"
	infraembedding "novel2video/internal/infrastructure/embedding"
	"novel2video/internal/infrastructure/image"
	"novel2video/internal/infrastructure/llm"
	"novel2video/internal/infrastructure/persistence/milvus"
	"novel2video/internal/infrastructure/persistence/redis"
	"novel2video/internal/infrastructure/rerank"
	"novel2video/internal/infrastructure/storage"
	"novel2video/internal/infrastructure/video"
	"novel2video/internal/workflow/agent"
	"novel2video/pkg/logger"
)

// Shared 进程级共享依赖，多个运行复用
type Shared struct {
	Config    *config.Config
	Redis     *redis.Client
	Milvus    *milvus.Client
	Agents    pipeline.Agents
	Images    service.ImageGenerator
	Videos    service.VideoGenerator
	Knowledge *retrieval.KnowledgeBase
	Mirror    service.ArtifactMirror
}

// RunSpec 单次运行参数
type RunSpec struct {
	RunID   string
	WorkDir string
	Style   string
	OnStage func(ctx context.Context, stage string, done bool)
}

// InitializeShared 初始化共享依赖，返回的 cleanup 关闭全部连接
func InitializeShared(ctx context.Context, cfg *config.Config) (*Shared, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Shared, func(), error) {
		cleanup()
		return nil, nil, err
	}

	s := &Shared{Config: cfg}

	redisClient, closeRedis := ProvideRedisClientOptional(ctx, cfg)
	cleanups = append(cleanups, closeRedis)
	s.Redis = redisClient

	einocallback.Init(ProvideUsageRecorder(redisClient))
	s.Agents = ProvideAgents(cfg)

	images, err := image.New(ctx, &cfg.Image)
	if err != nil {
		return fail(err)
	}
	s.Images = images

	if cfg.Pipeline.Videos {
		s.Videos = video.NewGenerator(&cfg.Video)
	}

	index, milvusClient, closeIndex, err := ProvideVectorIndex(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeIndex)
	s.Milvus = milvusClient

	kb, err := ProvideKnowledgeBase(ctx, cfg, redisClient, index)
	if err != nil {
		return fail(err)
	}
	s.Knowledge = kb

	mirror, err := storage.NewMirror(ctx, &cfg.Storage)
	if err != nil {
		return fail(err)
	}
	s.Mirror = mirror

	return s, cleanup, nil
}

// NewPipeline 为一次运行创建流水线：工作目录检查点与阶段状态
func (s *Shared) NewPipeline(spec RunSpec) (*pipeline.Pipeline, error) {
	workDir, err := filepath.Abs(spec.WorkDir)
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.NewFSStore(workDir)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.ConfigFrom(s.Config, spec.RunID)
	if spec.Style != "" {
		cfg.Style = spec.Style
	}

	return pipeline.New(pipeline.Deps{
		Store:     store,
		State:     ProvideStageState(s.Redis, spec.RunID, store),
		Agents:    s.Agents,
		Images:    s.Images,
		Videos:    s.Videos,
		Knowledge: s.Knowledge,
		Mirror:    s.Mirror,
		OnStage:   spec.OnStage,
	}, cfg)
}

// ProvideRedisClientOptional Redis 未启用或不可达时返回 nil，相关功能退回本地实现
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func()) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, using local cache and stage state", "error", err.Error())
		return nil, func() {}
	}
	return client, func() { _ = client.Close() }
}

// ProvideUsageRecorder 用量按运行累计到 Redis，Redis 不可用时只写日志
func ProvideUsageRecorder(redisClient *redis.Client) *usage.Recorder {
	if redisClient == nil {
		return usage.NewRecorder(nil)
	}
	return usage.NewRecorder(redisClient)
}

// ProvideAgents 基于 Eino 的文本协作方
func ProvideAgents(cfg *config.Config) pipeline.Agents {
	return agent.New(llm.NewEinoFactory(&cfg.LLM), nil, nil)
}

// ProvideVectorIndex 按配置选择向量索引，milvus 连接失败时直接报错
func ProvideVectorIndex(ctx context.Context, cfg *config.Config) (retrieval.VectorIndex, *milvus.Client, func(), error) {
	switch cfg.Vector.Backend {
	case "", "memory":
		return retrieval.NewMemoryIndex(), nil, func() {}, nil
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, nil, err
		}
		return milvus.NewVectorIndex(milvus.NewRepository(client)), client, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}

// ProvideKnowledgeBase 向量化（并发受限、可缓存）加索引加可选重排
func ProvideKnowledgeBase(ctx context.Context, cfg *config.Config, redisClient *redis.Client, index retrieval.VectorIndex) (*retrieval.KnowledgeBase, error) {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var cache retrieval.EmbeddingCache
	if redisClient != nil {
		cache = redis.NewEmbeddingCache(redisClient, cfg.Cache.EmbeddingTTL)
	}

	var reranker service.Reranker
	if cfg.Rerank.Enabled {
		reranker = rerank.NewClient(&cfg.Rerank)
	}

	run := pipeline.ConfigFrom(cfg, "")
	return retrieval.NewKnowledgeBase(
		retrieval.NewCachedEmbedder(pipeline.LimitEmbedder(embedder, cfg.Pipeline.Concurrency.Embedding), cache, cfg.Embedding.BatchSize),
		index,
		reranker,
		retrieval.Config{
			ChunkSize: cfg.Pipeline.Knowledge.ChunkSize,
			Overlap:   cfg.Pipeline.Knowledge.Overlap,
			TopK:      cfg.Pipeline.Knowledge.TopK,
			Threshold: cfg.Rerank.Threshold,
			Retry:     run.Retry,
		},
	), nil
}

// ProvideStageState Redis 可用时阶段状态同时写入 Redis
func ProvideStageState(redisClient *redis.Client, runID string, store repository.CheckpointStore) repository.StageState {
	if redisClient == nil {
		return checkpoint.NewFileStageState(store)
	}
	return checkpoint.NewRedisStageState(redisClient, runID, store)
}
