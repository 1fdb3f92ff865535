// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从 CONFIG_DIR（默认 configs）加载配置
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 按优先级加载：默认配置 -> 环境配置 -> 环境变量 -> 兜底默认值
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, dir+"/config.yaml", false); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := loadConfigFile(v, fmt.Sprintf("%s/config.%s.yaml", dir, env), true); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		return nil
	}
	if err := v.MergeConfig(reader); err != nil {
		return fmt.Errorf("failed to merge processed config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换 ${VAR} 与 ${VAR:default}；未定义且无默认值时保留原样
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "novel2video")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "60s")
	v.SetDefault("server.http.idle_timeout", "120s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "novel2video")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.auto_migrate", true)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.embedding_ttl", "0s")

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "novel2video")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.prefix", "runs")

	v.SetDefault("llm.default_provider", "openai")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 32)

	v.SetDefault("rerank.enabled", false)
	v.SetDefault("rerank.endpoint", "https://api.siliconflow.cn/v1/rerank")
	v.SetDefault("rerank.model", "BAAI/bge-reranker-v2-m3")
	v.SetDefault("rerank.threshold", 0.7)
	v.SetDefault("rerank.timeout", "30s")

	v.SetDefault("image.backend", "openai")
	v.SetDefault("image.model", "gpt-image-1")
	v.SetDefault("image.timeout", "180s")

	v.SetDefault("video.model", "sora-2")
	v.SetDefault("video.seconds", "4")
	v.SetDefault("video.size", "1280x720")
	v.SetDefault("video.poll_interval", "10s")
	v.SetDefault("video.poll_timeout", "20m")
	v.SetDefault("video.attempts", 3)
	v.SetDefault("video.retry_delay", "5s")

	v.SetDefault("pipeline.work_dir", ".working_dir")
	v.SetDefault("pipeline.style", "realistic, warm tones, cinematic lighting")
	v.SetDefault("pipeline.compress.chunk_size", 65536)
	v.SetDefault("pipeline.compress.overlap", 8192)
	v.SetDefault("pipeline.knowledge.chunk_size", 512)
	v.SetDefault("pipeline.knowledge.overlap", 128)
	v.SetDefault("pipeline.knowledge.top_k", 10)
	v.SetDefault("pipeline.concurrency.chat", 8)
	v.SetDefault("pipeline.concurrency.image", 5)
	v.SetDefault("pipeline.concurrency.embedding", 4)
	v.SetDefault("pipeline.concurrency.retrieval", 10)
	v.SetDefault("pipeline.concurrency.video", 1)
	v.SetDefault("pipeline.retry.attempts", 3)
	v.SetDefault("pipeline.retry.initial", "1s")
	v.SetDefault("pipeline.retry.max", "10s")
	v.SetDefault("pipeline.selection.candidates", 3)
	v.SetDefault("pipeline.selection.portrait_size", "512x512")
	v.SetDefault("pipeline.selection.frame_size", "1600x900")
	v.SetDefault("pipeline.selection.max_references", 5)
	v.SetDefault("pipeline.references.max_pool", 8)
	v.SetDefault("pipeline.references.eviction", "pin_portraits")
	v.SetDefault("pipeline.max_scenes_per_event", 5)
	v.SetDefault("pipeline.max_events", 200)
	v.SetDefault("pipeline.max_shots_per_scene", 40)
	v.SetDefault("pipeline.videos", true)

	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "2s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "60s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.logging.file_path", "logs/novel2video.log")
	v.SetDefault("observability.logging.max_size_mb", 100)
	v.SetDefault("observability.logging.max_backups", 5)
	v.SetDefault("observability.logging.max_age_days", 30)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 5)
}
