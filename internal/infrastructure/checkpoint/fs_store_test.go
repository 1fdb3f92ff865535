package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"novel2video/internal/domain/entity"
	apperrors "novel2video/pkg/errors"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return s
}

func TestFSStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	t.Run("text is stored raw", func(t *testing.T) {
		if err := s.Save(ctx, "novel/chunk_0.txt", "第一章\n雨夜"); err != nil {
			t.Fatal(err)
		}
		raw, err := os.ReadFile(s.Path("novel/chunk_0.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if string(raw) != "第一章\n雨夜" {
			t.Fatalf("raw content = %q", raw)
		}
		var got string
		if err := s.Load(ctx, "novel/chunk_0.txt", &got); err != nil {
			t.Fatal(err)
		}
		if got != "第一章\n雨夜" {
			t.Fatalf("Load = %q", got)
		}
	})

	t.Run("structs are stored as json", func(t *testing.T) {
		ev := entity.Event{Index: 2, IsLast: true, Description: "决战", ProcessChain: []string{"相遇", "交手"}}
		if err := s.Save(ctx, "events/event_2.json", ev); err != nil {
			t.Fatal(err)
		}
		var got entity.Event
		if err := s.Load(ctx, "events/event_2.json", &got); err != nil {
			t.Fatal(err)
		}
		if got.Index != 2 || !got.IsLast || len(got.ProcessChain) != 2 {
			t.Fatalf("Load = %+v", got)
		}
	})

	t.Run("bytes round trip", func(t *testing.T) {
		data := []byte{0x89, 'P', 'N', 'G'}
		if err := s.Save(ctx, "portraits/base/character_0.png", data); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadBytes(ctx, "portraits/base/character_0.png")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(data) {
			t.Fatalf("LoadBytes = %v", got)
		}
	})
}

func TestFSStoreExists(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ok, err := s.Exists(ctx, "events/event_0.json")
	if err != nil || ok {
		t.Fatalf("Exists before save = %v, %v", ok, err)
	}
	if err := s.Save(ctx, "events/event_0.json", entity.Event{Description: "x"}); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "events/event_0.json")
	if err != nil || !ok {
		t.Fatalf("Exists after save = %v, %v", ok, err)
	}
}

func TestFSStoreSaveTwiceIsSafe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 2; i++ {
		if err := s.Save(ctx, "novel/compressed.txt", "same"); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path("novel/compressed.txt")))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, found %d entries", len(entries))
	}
}

func TestFSStoreMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var v string
	err := s.Load(ctx, "missing.txt", &v)
	if !apperrors.HasCode(err, apperrors.CodeFileNotFound) {
		t.Fatalf("Load missing: %v", err)
	}
	err = s.Copy(ctx, "missing.png", "dst.png")
	if !apperrors.HasCode(err, apperrors.CodeFileNotFound) {
		t.Fatalf("Copy missing: %v", err)
	}
}

func TestFSStoreCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.SaveBytes(ctx, "candidates/1.png", []byte("img")); err != nil {
		t.Fatal(err)
	}
	if err := s.Copy(ctx, "candidates/1.png", "shot_0_first_frame.png"); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadBytes(ctx, "shot_0_first_frame.png")
	if err != nil || string(got) != "img" {
		t.Fatalf("copied = %q, %v", got, err)
	}
}

func TestFileStageState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	st := NewFileStageState(s)
	if done, _ := st.IsDone(ctx, "compress"); done {
		t.Fatal("fresh state reports done")
	}
	if err := st.MarkDone(ctx, "compress"); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkDone(ctx, "events"); err != nil {
		t.Fatal(err)
	}

	// 新实例从 state.json 恢复
	reloaded := NewFileStageState(s)
	done, err := reloaded.Done(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 2 || done[0] != "compress" || done[1] != "events" {
		t.Fatalf("Done = %v", done)
	}
}
