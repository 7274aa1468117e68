package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/models"
)

func TestOllamaEmbedderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"loading model"}`, http.StatusServiceUnavailable)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "all-minilm", req["model"])
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(srv.URL, "all-minilm", nil)
	require.NoError(t, err)
	e.RetryInterval = time.Millisecond

	vec, err := e.EmbedText(context.Background(), "photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedderEmptyEmbeddingIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(srv.URL, "all-minilm", nil)
	require.NoError(t, err)

	_, err = e.EmbedText(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

type lengthEmbedder struct{}

func (lengthEmbedder) EmbedText(_ context.Context, text string) ([]float64, error) {
	if strings.Contains(text, "boom") {
		return nil, errors.New("boom")
	}
	return []float64{float64(len(text))}, nil
}

func TestEmbedChunksFillsInPlace(t *testing.T) {
	chunks := []models.Chunk{{ID: "1", Text: "a"}, {ID: "2", Text: "bb"}, {ID: "3", Text: "ccc"}}
	var last int
	err := EmbedChunks(context.Background(), lengthEmbedder{}, chunks, 2, func(processed, total int) {
		assert.Equal(t, 3, total)
		last = processed
	})
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	for i, c := range chunks {
		assert.Equal(t, []float64{float64(i + 1)}, c.Embedding)
	}
}

func TestEmbedChunksPropagatesError(t *testing.T) {
	chunks := []models.Chunk{{ID: "1", Text: "fine"}, {ID: "2", Text: "boom"}}
	err := EmbedChunks(context.Background(), lengthEmbedder{}, chunks, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2")
}
