package resume

import (
	"context"
	"errors"
	"testing"

	"novel2video/internal/infrastructure/checkpoint"
)

type summary struct {
	Text string `json:"text"`
}

func TestUnitComputesOnceThenLoads(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	compute := func(context.Context) (summary, error) {
		calls++
		return summary{Text: "雨夜"}, nil
	}
	for i := 0; i < 3; i++ {
		got, err := Unit(ctx, store, "chunk", "compress/chunk_0.json", compute)
		if err != nil {
			t.Fatal(err)
		}
		if got.Text != "雨夜" {
			t.Fatalf("run %d got %+v", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
}

func TestUnitFailureIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, err = Unit(ctx, store, "event", "events/event_0.json", func(context.Context) (summary, error) {
		return summary{}, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if ok, _ := store.Exists(ctx, "events/event_0.json"); ok {
		t.Fatal("failed unit must not leave a checkpoint")
	}
}

func TestUnitWithoutStore(t *testing.T) {
	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = Unit(context.Background(), nil, "chunk", "k", func(context.Context) (int, error) {
			calls++
			return 1, nil
		})
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 without a store", calls)
	}
}

func TestArtifact(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	compute := func(ctx context.Context) error {
		calls++
		return store.SaveBytes(ctx, "shots/0/first_frame.png", []byte{0x89, 'P', 'N', 'G'})
	}
	for i := 0; i < 2; i++ {
		if err := Artifact(ctx, store, "frame", "shots/0/first_frame.png", compute); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
}
