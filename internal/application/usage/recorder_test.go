package usage

import (
	"context"
	"testing"

	"novel2video/internal/domain/service"
)

type memCounter map[string]map[string]int64

func (m memCounter) HIncrBy(_ context.Context, key, field string, incr int64) error {
	if m[key] == nil {
		m[key] = map[string]int64{}
	}
	m[key][field] += incr
	return nil
}

func TestRecordAccumulatesPerRun(t *testing.T) {
	counter := memCounter{}
	r := NewRecorder(counter)
	ctx := context.Background()

	calls := []service.LLMUsageInput{
		{RunID: "r1", Workflow: "events", PromptTokens: 100, CompletionTokens: 20},
		{RunID: "r1", Workflow: "scenes", PromptTokens: 50, CompletionTokens: 10},
		{RunID: "r2", Workflow: "events", PromptTokens: 7, CompletionTokens: 3},
		{Workflow: "judge", PromptTokens: 9},
	}
	for _, in := range calls {
		if err := r.Record(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	got := counter[r.Key("r1")]
	if got["calls"] != 2 || got["prompt_tokens"] != 150 || got["completion_tokens"] != 30 {
		t.Errorf("r1 usage = %v", got)
	}
	if got["events:tokens"] != 120 || got["scenes:tokens"] != 60 {
		t.Errorf("r1 per-workflow usage = %v", got)
	}
	if counter[r.Key("r2")]["calls"] != 1 {
		t.Errorf("r2 usage = %v", counter[r.Key("r2")])
	}
	if len(counter) != 2 {
		t.Errorf("usage without run id should not be stored, keys = %d", len(counter))
	}
}

func TestRecordRejectsNegativeUsage(t *testing.T) {
	r := NewRecorder(nil)
	if err := r.Record(context.Background(), service.LLMUsageInput{RunID: "r", PromptTokens: -1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecordWithoutCounter(t *testing.T) {
	r := NewRecorder(nil)
	if err := r.Record(context.Background(), service.LLMUsageInput{RunID: "r", PromptTokens: 1}); err != nil {
		t.Fatal(err)
	}
}
