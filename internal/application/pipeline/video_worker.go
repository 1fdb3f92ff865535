package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"novel2video/internal/application/resume"
	"novel2video/internal/domain/repository"
	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
	"novel2video/pkg/retry"
)

type videoJob struct {
	Key        string
	Prompt     string
	FirstFrame string
	LastFrame  string
}

// videoWorker 后台视频任务：提交即返回，提交、轮询、下载在独立 goroutine 中完成，运行结束时统一等待
type videoWorker struct {
	gen    service.VideoGenerator
	store  repository.CheckpointStore
	opts   VideoOptions
	sem    *semaphore.Weighted
	onDone func(ctx context.Context, key string)

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func newVideoWorker(gen service.VideoGenerator, store repository.CheckpointStore, opts VideoOptions, concurrency int, onDone func(ctx context.Context, key string)) *videoWorker {
	return &videoWorker{
		gen:    gen,
		store:  store,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		onDone: onDone,
	}
}

// Submit 不阻塞调用方
func (w *videoWorker) Submit(ctx context.Context, job videoJob) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.process(ctx, job); err != nil {
			w.mu.Lock()
			w.errs = append(w.errs, fmt.Errorf("video %s: %w", job.Key, err))
			w.mu.Unlock()
		}
	}()
}

// Wait 等待全部已提交任务结束，返回汇总的失败
func (w *videoWorker) Wait() error {
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.errs...)
}

func (w *videoWorker) process(ctx context.Context, job videoJob) error {
	return resume.Artifact(ctx, w.store, "video", job.Key, func(ctx context.Context) error {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer w.sem.Release(1)

		policy := retry.Policy{MaxAttempts: w.opts.Attempts, Initial: w.opts.RetryDelay, Constant: true}
		err := retry.Run(ctx, "video.generate", policy, func(ctx context.Context) error {
			return w.generate(ctx, job)
		})
		if err != nil {
			metrics.VideoJobsTotal.WithLabelValues("failed").Inc()
			return err
		}
		metrics.VideoJobsTotal.WithLabelValues("completed").Inc()
		if w.onDone != nil {
			w.onDone(ctx, job.Key)
		}
		return nil
	})
}

// generate 一次完整尝试：提交、轮询至终态、下载
func (w *videoWorker) generate(ctx context.Context, job videoJob) error {
	id, err := w.gen.Submit(ctx, job.Prompt, job.FirstFrame, job.LastFrame)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "video job submitted", "job_id", id, "key", job.Key)

	pollCtx, cancel := context.WithTimeout(ctx, w.opts.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := w.gen.Poll(pollCtx, id)
		if err != nil {
			return err
		}
		switch status {
		case service.VideoCompleted:
			return w.gen.Download(ctx, id, w.store.Path(job.Key))
		case service.VideoFailed:
			return fmt.Errorf("video job %s failed", id)
		}
		select {
		case <-pollCtx.Done():
			return fmt.Errorf("video job %s: %w", id, pollCtx.Err())
		case <-ticker.C:
		}
	}
}
