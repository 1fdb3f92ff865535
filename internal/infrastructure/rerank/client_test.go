package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"novel2video/internal/config"
)

func TestRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization = %q", got)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.TopN != 2 || len(req.Documents) != 3 {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.91},{"index":0,"relevance_score":0.4}]}`))
	}))
	defer srv.Close()

	c := NewClient(&config.RerankConfig{Endpoint: srv.URL + "/v1", APIKey: "k"})
	got, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].Index != 2 || got[0].Score != 0.91 {
		t.Errorf("results = %+v", got)
	}
}

func TestRerankHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(&config.RerankConfig{Endpoint: srv.URL})
	if _, err := c.Rerank(context.Background(), "q", []string{"a"}, 1); err == nil {
		t.Fatal("expected error on 429")
	}
}
