// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"novel2video/internal/infrastructure/persistence/milvus"
	"novel2video/internal/infrastructure/persistence/postgres"
	"novel2video/internal/infrastructure/persistence/redis"
)

const readyTimeout = 2 * time.Second

var errNotConfigured = errors.New("not configured")

// probe 单项依赖探测；required 为 false 的失败只降级不影响就绪
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	probes []probe
}

// NewHealthHandler 创建探针处理器。postgres、redis 与工作目录为必需项，milvus 可为 nil。
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client, workDir string) *HealthHandler {
	h := &HealthHandler{}
	h.probes = append(h.probes,
		probe{name: "postgres", required: true, check: func(ctx context.Context) error {
			if pg == nil {
				return errNotConfigured
			}
			return pg.HealthCheck(ctx)
		}},
		probe{name: "redis", required: true, check: func(ctx context.Context) error {
			if redisClient == nil {
				return errNotConfigured
			}
			return redisClient.HealthCheck(ctx)
		}},
		probe{name: "work_dir", required: true, check: func(context.Context) error {
			return writable(workDir)
		}},
	)
	if milvusClient != nil {
		h.probes = append(h.probes, probe{name: "milvus", check: milvusClient.HealthCheck})
	}
	return h
}

// HealthResponse 存活响应
type HealthResponse struct {
	Status string `json:"status"`
}

type probeResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                  `json:"status"`
	Checks map[string]*probeResult `json:"checks"`
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Live GET /live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready GET /ready：并发探测全部依赖，任一必需项失败返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		ready = true
		resp  = readinessResponse{Status: "ok", Checks: make(map[string]*probeResult, len(h.probes))}
	)
	var g errgroup.Group
	for _, p := range h.probes {
		g.Go(func() error {
			start := time.Now()
			err := p.check(ctx)
			res := &probeResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
				res.Status = "degraded"
				if p.required {
					res.Status = "error"
				}
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[p.name] = res
			if err != nil && p.required {
				ready = false
			}
			return nil
		})
	}
	_ = g.Wait()

	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writable(dir string) error {
	if dir == "" {
		return errNotConfigured
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
