package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("N2V_TEST_KEY", "secret")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${N2V_TEST_KEY}", "key: secret"},
		{"set variable ignores default", "key: ${N2V_TEST_KEY:fallback}", "key: secret"},
		{"unset with default", "key: ${N2V_TEST_MISSING:fallback}", "key: fallback"},
		{"unset with empty default", "key: ${N2V_TEST_MISSING:}", "key: "},
		{"unset without default kept", "key: ${N2V_TEST_MISSING}", "key: ${N2V_TEST_MISSING}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnv(tt.in); got != tt.want {
				t.Fatalf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	base := `
pipeline:
  work_dir: ${N2V_TEST_WORKDIR:/tmp/n2v}
  references:
    max_pool: 4
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}
	override := `
pipeline:
  selection:
    candidates: 2
`
	if err := os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Pipeline.WorkDir != "/tmp/n2v" {
		t.Errorf("work_dir = %q", cfg.Pipeline.WorkDir)
	}
	if cfg.Pipeline.References.MaxPool != 4 {
		t.Errorf("max_pool = %d, want 4", cfg.Pipeline.References.MaxPool)
	}
	if cfg.Pipeline.Selection.Candidates != 2 {
		t.Errorf("candidates = %d, want 2 from env override file", cfg.Pipeline.Selection.Candidates)
	}
	if cfg.Pipeline.MaxScenesPerEvent != 5 {
		t.Errorf("max_scenes_per_event default = %d, want 5", cfg.Pipeline.MaxScenesPerEvent)
	}
	if cfg.Rerank.Threshold != 0.7 {
		t.Errorf("rerank threshold default = %v, want 0.7", cfg.Rerank.Threshold)
	}
	if cfg.Video.RetryDelay != 5*time.Second {
		t.Errorf("video retry delay = %v", cfg.Video.RetryDelay)
	}
}

func TestLoadFromMissingBase(t *testing.T) {
	if _, err := LoadFrom(t.TempDir()); err == nil {
		t.Fatal("expected error when config.yaml is missing")
	}
}
