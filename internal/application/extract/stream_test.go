package extract

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"novel2video/internal/application/resume"
	"novel2video/internal/domain/entity"
	"novel2video/internal/infrastructure/checkpoint"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BackOff: &backoff.ZeroBackOff{}}

// scriptedEvents 第 k 次调用返回 index=len(history) 的事件，第 last 个标记结束
type scriptedEvents struct {
	last  int
	calls int
	// shift 非零时声明错误的序号
	shift int
	// failFirst 前若干次调用返回瞬时错误
	failFirst int
}

func (g *scriptedEvents) NextEvent(_ context.Context, _ string, history []entity.Event) (entity.Event, error) {
	g.calls++
	if g.calls <= g.failFirst {
		return entity.Event{}, errors.New("transient")
	}
	return entity.Event{
		Index:       len(history) + g.shift,
		IsLast:      len(history) == g.last,
		Description: "event",
	}, nil
}

func TestStreamTerminatesAfterLastUnit(t *testing.T) {
	for _, k := range []int{1, 2, 5, 9} {
		gen := &scriptedEvents{last: k - 1}
		s := Events(gen, "novel", Options{Retry: fastRetry})

		events, err := s.Collect(context.Background())
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if gen.calls != k {
			t.Errorf("k=%d: generator called %d times", k, gen.calls)
		}
		if len(events) != k {
			t.Fatalf("k=%d: got %d events", k, len(events))
		}
		for i, ev := range events {
			if ev.Index != i {
				t.Errorf("k=%d: event %d has index %d", k, i, ev.Index)
			}
		}
		if _, err := s.Next(context.Background()); err != io.EOF {
			t.Errorf("k=%d: Next after last = %v, want io.EOF", k, err)
		}
	}
}

func TestStreamRejectsIndexMismatch(t *testing.T) {
	gen := &scriptedEvents{last: 3, shift: 1}
	s := Events(gen, "novel", Options{Retry: fastRetry})

	_, err := s.Next(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeIndexMismatch) {
		t.Fatalf("Next = %v, want index mismatch", err)
	}
	if len(s.History()) != 0 {
		t.Fatalf("bad unit was appended: %v", s.History())
	}
	if gen.calls != fastRetry.MaxAttempts {
		t.Errorf("calls = %d, want %d bounded re-invocations", gen.calls, fastRetry.MaxAttempts)
	}
}

func TestStreamRetriesTransientFailures(t *testing.T) {
	gen := &scriptedEvents{last: 0, failFirst: 2}
	s := Events(gen, "novel", Options{Retry: fastRetry})

	events, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || gen.calls != 3 {
		t.Fatalf("events=%d calls=%d", len(events), gen.calls)
	}
}

func TestStreamExhaustedRetriesDoNotAdvance(t *testing.T) {
	gen := &scriptedEvents{last: 2, failFirst: 100}
	s := Events(gen, "novel", Options{Retry: fastRetry})

	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(s.History()) != 0 || s.Done() {
		t.Fatal("sequence advanced after failure")
	}
}

type endlessScenes struct{ calls int }

func (g *endlessScenes) NextScene(_ context.Context, _ entity.Event, _ []string, history []entity.Scene) (entity.Scene, error) {
	g.calls++
	return entity.Scene{
		Idx:         len(history),
		Environment: entity.Environment{Slugline: "INT. INN - NIGHT", Description: "inn"},
		Script:      "script",
	}, nil
}

func TestStreamMaxUnits(t *testing.T) {
	gen := &endlessScenes{}
	s := Scenes(gen, entity.Event{}, nil, Options{MaxUnits: 5, Retry: fastRetry})

	scenes, err := s.Collect(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeSchemaViolation) {
		t.Fatalf("Collect = %v, want schema violation", err)
	}
	if len(scenes) != 4 {
		t.Fatalf("kept %d scenes, want the 4 valid ones", len(scenes))
	}
}

func TestStreamResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Retry: fastRetry, Store: store, Key: resume.EventKey}

	// 第一次运行只抽取两个单元后“崩溃”
	first := &scriptedEvents{last: 3}
	s := Events(first, "novel", opts)
	for i := 0; i < 2; i++ {
		if _, err := s.Next(ctx); err != nil {
			t.Fatal(err)
		}
	}

	second := &scriptedEvents{last: 3}
	events, err := Events(second, "novel", opts).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events", len(events))
	}
	if second.calls != 2 {
		t.Errorf("resumed run called generator %d times, want 2", second.calls)
	}

	third := &scriptedEvents{last: 3}
	if _, err := Events(third, "novel", opts).Collect(ctx); err != nil {
		t.Fatal(err)
	}
	if third.calls != 0 {
		t.Errorf("complete run called generator %d times, want 0", third.calls)
	}
}
