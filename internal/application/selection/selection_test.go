package selection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"novel2video/internal/domain/entity"
	"novel2video/internal/infrastructure/checkpoint"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BackOff: &backoff.ZeroBackOff{}}

func newStore(t *testing.T) *checkpoint.FSStore {
	t.Helper()
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return store
}

type countingImages struct {
	calls atomic.Int32
	fail  bool
}

func (g *countingImages) Generate(_ context.Context, prompt string, _ []string, _ string) ([]byte, error) {
	n := g.calls.Add(1)
	if g.fail {
		return nil, errors.New("backend down")
	}
	return []byte(fmt.Sprintf("%s#%d", prompt, n)), nil
}

type fixedJudge struct {
	best  int
	calls int
}

func (j *fixedJudge) SelectBest(_ context.Context, _ []entity.Reference, _ string, _ []string) (Judgment, error) {
	j.calls++
	return Judgment{BestIndex: j.best, Reason: "sharpest"}, nil
}

func TestSelectEmptyCandidates(t *testing.T) {
	s := NewSelector(&countingImages{}, &fixedJudge{}, newStore(t), nil, Config{Retry: fastRetry})
	_, err := s.Select(context.Background(), nil, "target", nil)
	if !apperrors.HasCode(err, apperrors.CodeCandidateEmpty) {
		t.Fatalf("err = %v, want candidate empty", err)
	}
}

func TestSelectJudgeIndex(t *testing.T) {
	candidates := []string{"c/0.png", "c/1.png", "c/2.png"}
	tests := []struct {
		name string
		best int
		want string
	}{
		{"in range", 2, "c/2.png"},
		{"index equal to count", 3, "c/0.png"},
		{"negative", -1, "c/0.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(nil, &fixedJudge{best: tt.best}, newStore(t), nil, Config{Retry: fastRetry})
			got, err := s.Select(context.Background(), nil, "target", candidates)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateAndSelect(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	images := &countingImages{}
	judge := &fixedJudge{best: 1}
	s := NewSelector(images, judge, store, nil, Config{Candidates: 3, Retry: fastRetry})

	req := Request{Target: "hero", CandidateDir: "cands/shot_0_first_frame", SaveKey: "shot_0_first_frame.png"}
	key, err := s.GenerateAndSelect(ctx, req)
	if err != nil {
		t.Fatalf("GenerateAndSelect: %v", err)
	}
	if images.calls.Load() != 3 || judge.calls != 1 {
		t.Fatalf("image calls = %d, judge calls = %d", images.calls.Load(), judge.calls)
	}
	chosen, _ := store.LoadBytes(ctx, key)
	want, _ := store.LoadBytes(ctx, CandidateKey(req.CandidateDir, 1))
	if string(chosen) != string(want) {
		t.Errorf("chosen = %q, want candidate 1 %q", chosen, want)
	}

	// 最终帧已存在：不再生成也不再评审
	if _, err := s.GenerateAndSelect(ctx, req); err != nil {
		t.Fatal(err)
	}
	if images.calls.Load() != 3 || judge.calls != 1 {
		t.Errorf("rerun invoked collaborators: images=%d judge=%d", images.calls.Load(), judge.calls)
	}
}

func TestGenerateAndSelectReusesCandidates(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := "cands/shot_1_first_frame"
	if err := store.SaveBytes(ctx, CandidateKey(dir, 0), []byte("existing")); err != nil {
		t.Fatal(err)
	}

	images := &countingImages{}
	s := NewSelector(images, &fixedJudge{best: 0}, store, nil, Config{Candidates: 3, Retry: fastRetry})
	key, err := s.GenerateAndSelect(ctx, Request{Target: "t", CandidateDir: dir, SaveKey: "out.png"})
	if err != nil {
		t.Fatal(err)
	}
	if n := images.calls.Load(); n != 2 {
		t.Errorf("image calls = %d, want only the 2 missing candidates", n)
	}
	if got, _ := store.LoadBytes(ctx, key); string(got) != "existing" {
		t.Errorf("chosen = %q", got)
	}
}

func TestGenerateAndSelectAllCandidatesFail(t *testing.T) {
	store := newStore(t)
	images := &countingImages{fail: true}
	s := NewSelector(images, &fixedJudge{}, store, nil, Config{Candidates: 2, Retry: fastRetry})

	_, err := s.GenerateAndSelect(context.Background(), Request{Target: "t", CandidateDir: "c", SaveKey: "out.png"})
	if !apperrors.HasCode(err, apperrors.CodeCandidateEmpty) {
		t.Fatalf("err = %v, want candidate empty", err)
	}
	if n := images.calls.Load(); n != 2*int32(fastRetry.MaxAttempts) {
		t.Errorf("image calls = %d, want %d", n, 2*fastRetry.MaxAttempts)
	}
	if ok, _ := store.Exists(context.Background(), "out.png"); ok {
		t.Error("final frame written despite failure")
	}
}

func TestRegistryEviction(t *testing.T) {
	portrait := func(p string) entity.Reference { return entity.Reference{Path: p, Portrait: true} }
	frame := func(p string) entity.Reference { return entity.Reference{Path: p} }

	tests := []struct {
		name      string
		eviction  Eviction
		portraits []string
		want      []string
	}{
		{"oldest", EvictOldest, []string{"p0", "p1"}, []string{"f1", "f2", "f3"}},
		{"pin portraits", EvictPinPortraits, []string{"p0", "p1"}, []string{"p0", "p1", "f3"}},
		{"portraits fill the pool", EvictPinPortraits, []string{"p0", "p1", "p2"}, []string{"p1", "p2", "f3"}},
		{"more portraits than the pool", EvictPinPortraits, []string{"p0", "p1", "p2", "p3"}, []string{"p2", "p3", "f3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var initial []entity.Reference
			for _, p := range tt.portraits {
				initial = append(initial, portrait(p))
			}
			r := NewRegistry(3, tt.eviction, initial...)
			r.Append(frame("f1"))
			r.Append(frame("f2"))
			r.Append(frame("f3"))

			got := r.Snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("snapshot = %+v", got)
			}
			for i, ref := range got {
				if ref.Path != tt.want[i] {
					t.Errorf("snapshot[%d] = %q, want %q", i, ref.Path, tt.want[i])
				}
			}
		})
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry(0, EvictOldest, entity.Reference{Path: "a", Description: "old"})
	snap := r.Snapshot()
	r.Append(entity.Reference{Path: "b"}, entity.Reference{Path: "a", Description: "new"})

	if len(snap) != 1 || snap[0].Description != "old" {
		t.Errorf("snapshot changed after append: %+v", snap)
	}
	got := r.Snapshot()
	if len(got) != 2 || got[1].Path != "a" || got[1].Description != "new" {
		t.Errorf("re-appended path should move to the end: %+v", got)
	}
}
