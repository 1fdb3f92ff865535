// Package main 命令行入口：小说或创意到视频，中断后以相同工作目录重跑即可续跑
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"novel2video/internal/config"
	"novel2video/internal/wire"
	"novel2video/pkg/logger"
)

func main() {
	var (
		input       = flag.String("input", "", "novel text file")
		idea        = flag.String("idea", "", "idea text, used instead of -input")
		requirement = flag.String("requirement", "", "extra requirement for idea mode")
		style       = flag.String("style", "", "visual style, overrides config")
		workDir     = flag.String("work-dir", "", "working directory, overrides config")
		runID       = flag.String("run-id", "", "run id, defaults to the working directory name")
	)
	flag.Parse()

	if (*input == "") == (*idea == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -input or -idea is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*input, *idea, *requirement, *style, *workDir, *runID); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline failed: %v\n", err)
		os.Exit(1)
	}
}

func run(input, idea, requirement, style, workDir, runID string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := wire.InitObservability(ctx, cfg, "novel2video-cli")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	if workDir == "" {
		workDir = cfg.Pipeline.WorkDir
	}
	if runID == "" {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return err
		}
		runID = filepath.Base(abs)
	}

	shared, cleanup, err := wire.InitializeShared(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := shared.NewPipeline(wire.RunSpec{RunID: runID, WorkDir: workDir, Style: style})
	if err != nil {
		return err
	}

	logger.Info(ctx, "run starting", "run_id", runID, "work_dir", workDir)
	if idea != "" {
		return p.Idea2Video(ctx, idea, requirement)
	}
	text, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return p.Novel2Video(ctx, string(text))
}
