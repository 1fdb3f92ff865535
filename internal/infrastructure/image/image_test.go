package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"novel2video/internal/config"
)

func TestOpenAISize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1600x900", "1536x1024", false},
		{"512x512", "1024x1024", false},
		{"900x1600", "1024x1536", false},
		{"wide", "", true},
		{"0x10", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := openAISize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("openAISize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAspectRatio(t *testing.T) {
	for in, want := range map[string]string{"1600x900": "16:9", "512x512": "1:1", "1080x1920": "9:16"} {
		got, err := aspectRatio(in)
		if err != nil || got != want {
			t.Errorf("aspectRatio(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestOpenAIGenerate(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["size"] != "1536x1024" {
			t.Errorf("size = %v", body["size"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(&config.ImageConfig{APIKey: "k", BaseURL: srv.URL})
	got, err := g.Generate(context.Background(), "a rainy inn", nil, "1600x900")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(got) != string(png) {
		t.Errorf("image bytes = %q", got)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), &config.ImageConfig{Backend: "dalle-local"}); err == nil {
		t.Fatal("expected error")
	}
}
