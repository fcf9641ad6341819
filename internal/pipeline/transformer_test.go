package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/readably/api/internal/client"
	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/model"
)

func sampleChunk() model.ExtractedChunk {
	return model.ExtractedChunk{
		ChunkID:    "chunk-1",
		PageNumber: 1,
		Text:       "Water evaporates from the warm ocean surface",
	}
}

func TestTransformChunk_MockHonorsWordLimit(t *testing.T) {
	tr := NewTransformer(nil)

	blocks, err := tr.TransformChunk(context.Background(), sampleChunk(), model.ProcessingOptions{WordLimit: 3})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Text != "Water evaporates from" {
		t.Errorf("expected text limited to 3 words, got %q", blocks[0].Text)
	}
}

func TestTransformChunk_WordLimitReachesPrompt(t *testing.T) {
	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.MessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotSystem = req.System
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"[{\"type\":\"TEXT\",\"text\":\"Water turns into vapor.\"}]"}]}`))
	}))
	defer srv.Close()

	tr := NewTransformer(client.NewTransformerClient(&config.TransformerConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	}))

	blocks, err := tr.TransformChunk(context.Background(), sampleChunk(), model.ProcessingOptions{WordLimit: 40})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "Water turns into vapor." {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
	if !strings.Contains(gotSystem, "under 40 words") {
		t.Errorf("expected word limit in system prompt, got %q", gotSystem)
	}
}

func TestLimitWords(t *testing.T) {
	cases := []struct {
		text string
		n    int
		want string
	}{
		{"one two three", 2, "one two"},
		{"one two three", 3, "one two three"},
		{"one two three", 10, "one two three"},
		{"one two three", 0, "one two three"},
	}
	for _, tc := range cases {
		if got := limitWords(tc.text, tc.n); got != tc.want {
			t.Errorf("limitWords(%q, %d) = %q, want %q", tc.text, tc.n, got, tc.want)
		}
	}
}
