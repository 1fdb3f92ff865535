package tracer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())

	ctx, span := StartStage(context.Background(), "run-1", "compress")
	End(span, errors.New("boom"))
	if TraceID(ctx) != "" {
		t.Errorf("noop tracer should not produce a trace id")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("sampler(%v) = %q, want it to mention %q", tt.rate, got, tt.want)
		}
	}
}
