package video

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"novel2video/internal/domain/service"
)

func TestMapStatus(t *testing.T) {
	tests := map[string]service.VideoStatus{
		"queued":      service.VideoQueued,
		"in_progress": service.VideoRunning,
		"completed":   service.VideoCompleted,
		"failed":      service.VideoFailed,
		"":            service.VideoQueued,
	}
	for in, want := range tests {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "shot_0", "video.mp4")
	if err := writeFile(dst, strings.NewReader("mp4")); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "mp4" {
		t.Fatalf("read back = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
