// Package main 异步运行执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"novel2video/internal/application/runs"
	"novel2video/internal/config"
	"novel2video/internal/infrastructure/messaging"
	"novel2video/internal/infrastructure/persistence/postgres"
	"novel2video/internal/wire"
	"novel2video/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := wire.InitObservability(ctx, cfg, "job-worker")
	if err != nil {
		logger.Fatal(ctx, "failed to init observability", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	shared, cleanup, err := wire.InitializeShared(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to init pipeline dependencies", err)
	}
	defer cleanup()
	if shared.Redis == nil {
		logger.Fatal(ctx, "job-worker requires redis", fmt.Errorf("redis disabled or unreachable"))
	}

	svc := runs.NewService(postgres.NewRunRepository(pgClient), nil, cfg.Pipeline.WorkDir).
		WithTransactor(postgres.NewTxManager(pgClient))
	factory := func(runID, workDir, style string, onStage func(ctx context.Context, stage string, done bool)) (runs.Pipeline, error) {
		return shared.NewPipeline(wire.RunSpec{RunID: runID, WorkDir: workDir, Style: style, OnStage: onStage})
	}

	stream := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(shared.Redis.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamRunRequested,
		Group:        messaging.ConsumerGroupRunWorker,
		ConsumerName: hostnameConsumerName(),
		BlockTimeout: stream.BlockTimeout,
		RetryLimit:   stream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    stream.RetryBackoff.Initial,
			Max:        stream.RetryBackoff.Max,
			Multiplier: stream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeRunRequested, func(ctx context.Context, msg *messaging.Message) error {
		var req messaging.RunRequestedMessage
		if err := msg.UnmarshalPayload(&req); err != nil {
			return err
		}
		ctx = logger.WithRun(ctx, req.RunID)
		return svc.Execute(ctx, &req, factory)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	logger.Info(ctx, "job-worker started")

	<-ctx.Done()

	logger.Info(context.Background(), "job-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
