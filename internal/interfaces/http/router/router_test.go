package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"novel2video/internal/application/runs"
	"novel2video/internal/config"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	"novel2video/internal/interfaces/http/handler"
	apperrors "novel2video/pkg/errors"
)

type stubRuns struct {
	submitted []runs.SubmitInput
}

func (s *stubRuns) Submit(_ context.Context, in runs.SubmitInput) (*entity.Run, error) {
	s.submitted = append(s.submitted, in)
	return entity.NewRun("run-1", in.Mode, "/w/input.txt", "/w", in.Style), nil
}

func (s *stubRuns) Get(_ context.Context, id string) (*entity.Run, error) {
	if id != "run-1" {
		return nil, apperrors.ErrRunNotFound.WithDetail(id)
	}
	run := entity.NewRun("run-1", entity.RunModeNovel, "/w/input.txt", "/w", "")
	run.Start()
	run.MarkStage("compress", true)
	return run, nil
}

func (s *stubRuns) List(_ context.Context, _ *repository.RunFilter, p repository.Pagination) (*repository.PagedResult[*entity.Run], error) {
	run, _ := s.Get(context.Background(), "run-1")
	return repository.NewPagedResult([]*entity.Run{run}, 1, p), nil
}

// countingLimiter 前 n 次放行
type countingLimiter struct{ n int }

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.n--
	return l.n >= 0, nil
}

func newRouter(t *testing.T, limiter *countingLimiter) (*Router, *stubRuns) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Observability.Metrics.Enabled = true
	cfg.Security.RateLimit.Enabled = limiter != nil
	svc := &stubRuns{}
	h := Handlers{
		Health: handler.NewHealthHandler(nil, nil, nil, t.TempDir()),
		Run:    handler.NewRunHandler(svc),
	}
	if limiter == nil {
		return New(cfg, h, nil), svc
	}
	return New(cfg, h, limiter), svc
}

func serve(r *Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	return w
}

func TestRunRoutes(t *testing.T) {
	r, svc := newRouter(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"submit novel", http.MethodPost, "/v1/runs", `{"mode":"novel","text":"雨夜","style":"ink"}`, http.StatusAccepted},
		{"submit bad mode", http.MethodPost, "/v1/runs", `{"mode":"poem","text":"x"}`, http.StatusBadRequest},
		{"submit missing text", http.MethodPost, "/v1/runs", `{"mode":"idea"}`, http.StatusBadRequest},
		{"get run", http.MethodGet, "/v1/runs/run-1", "", http.StatusOK},
		{"get missing run", http.MethodGet, "/v1/runs/nope", "", http.StatusNotFound},
		{"list runs", http.MethodGet, "/v1/runs?status=running", "", http.StatusOK},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("missing request id header")
			}
		})
	}

	if len(svc.submitted) != 1 || svc.submitted[0].Mode != entity.RunModeNovel || svc.submitted[0].Style != "ink" {
		t.Errorf("submitted = %+v", svc.submitted)
	}
}

func TestGetRunBody(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := serve(r, http.MethodGet, "/v1/runs/run-1", "")

	var resp struct {
		Data struct {
			ID              string   `json:"id"`
			Status          string   `json:"status"`
			CompletedStages []string `json:"completed_stages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.ID != "run-1" || resp.Data.Status != "running" || len(resp.Data.CompletedStages) != 1 {
		t.Errorf("response = %+v", resp.Data)
	}
}

func TestReadyReportsMissingDependencies(t *testing.T) {
	r, _ := newRouter(t, nil)
	if w := serve(r, http.MethodGet, "/ready", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d, want 503 without postgres and redis", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r, _ := newRouter(t, &countingLimiter{n: 1})
	if w := serve(r, http.MethodGet, "/v1/runs/run-1", ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/v1/runs/run-1", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}
	if w := serve(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health is not rate limited, got %d", w.Code)
	}
}
