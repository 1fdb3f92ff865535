package callback

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
)

type fakeRecorder struct {
	calls []service.LLMUsageInput
}

func (f *fakeRecorder) Record(_ context.Context, in service.LLMUsageInput) error {
	f.calls = append(f.calls, in)
	return nil
}

func TestObserverRecordsUsage(t *testing.T) {
	rec := &fakeRecorder{}
	o := newModelObserver(rec)

	ctx := service.WithWorkflowProvider(context.Background(), "extract", "openai")
	ctx = logger.WithRun(ctx, "run-1")
	ctx = o.onStart(ctx, &einocb.RunInfo{Name: "extractor"}, &model.CallbackInput{Config: &model.Config{Model: "gpt"}})
	o.onEnd(ctx, nil, &model.CallbackOutput{
		Config:     &model.Config{Model: "gpt"},
		TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 4},
	})

	if len(rec.calls) != 1 {
		t.Fatalf("recorder called %d times, want 1", len(rec.calls))
	}
	got := rec.calls[0]
	if got.RunID != "run-1" || got.Workflow != "extract" || got.Provider != "openai" || got.Model != "gpt" {
		t.Errorf("unexpected labels: %+v", got)
	}
	if got.PromptTokens != 10 || got.CompletionTokens != 4 {
		t.Errorf("unexpected tokens: %+v", got)
	}
}

func TestObserverSkipsRecorderWithoutUsage(t *testing.T) {
	rec := &fakeRecorder{}
	o := newModelObserver(rec)

	ctx := o.onStart(context.Background(), nil, nil)
	o.onEnd(ctx, nil, &model.CallbackOutput{})
	o.onError(o.onStart(context.Background(), nil, nil), &einocb.RunInfo{Type: "OpenAI"}, errors.New("rate limited"))

	if len(rec.calls) != 0 {
		t.Fatalf("recorder called %d times, want 0", len(rec.calls))
	}
}
