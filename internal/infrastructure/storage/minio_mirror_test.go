package storage

import (
	"context"
	"testing"

	"novel2video/internal/config"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "characters/character_0.png", "characters/character_0.png"},
		{"runs/abc", "/videos/event_0/scene_1/shots/shot_0.json", "runs/abc/videos/event_0/scene_1/shots/shot_0.json"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.prefix, tt.key); got != tt.want {
			t.Errorf("ObjectName(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestNewMirrorDisabled(t *testing.T) {
	m, err := NewMirror(context.Background(), &config.StorageConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(Noop); !ok {
		t.Fatalf("mirror = %T, want Noop", m)
	}
	if err := m.Mirror(context.Background(), "k", "/nonexistent"); err != nil {
		t.Fatal(err)
	}
}
