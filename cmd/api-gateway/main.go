// Package main API Gateway 服务入口：提交运行、查询状态
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"novel2video/internal/application/runs"
	"novel2video/internal/config"
	"novel2video/internal/infrastructure/messaging"
	"novel2video/internal/infrastructure/persistence/postgres"
	"novel2video/internal/infrastructure/persistence/redis"
	"novel2video/internal/interfaces/http/handler"
	"novel2video/internal/interfaces/http/router"
	"novel2video/internal/wire"
	"novel2video/pkg/logger"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	shutdown, err := wire.InitObservability(ctx, cfg, cfg.App.Name)
	if err != nil {
		logger.Fatal(ctx, "failed to init observability", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logger.Error(ctx, "failed to shutdown tracer", err)
		}
	}()

	logger.Info(ctx, "starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	// 运行请求经 Redis Stream 入队，网关必须连上 Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	svc := runs.NewService(postgres.NewRunRepository(pgClient), producer, cfg.Pipeline.WorkDir).
		WithTransactor(postgres.NewTxManager(pgClient))

	r := router.New(cfg, router.Handlers{
		Health: handler.NewHealthHandler(pgClient, redisClient, nil, cfg.Pipeline.WorkDir),
		Run:    handler.NewRunHandler(svc),
	}, redis.NewRateLimiter(redisClient))

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server forced to shutdown", err)
	}

	logger.Info(ctx, "server exited")
}
