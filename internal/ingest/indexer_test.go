package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/chunkstore"
	"exampaper-rag/internal/models"
	"exampaper-rag/internal/processor"
)

type lengthEmbedder struct{ fail bool }

func (e lengthEmbedder) EmbedText(_ context.Context, text string) ([]float64, error) {
	if e.fail {
		return nil, apperr.New(apperr.UpstreamUnavailable, errors.New("ollama is down"))
	}
	return []float64{1, float64(len(text))}, nil
}

func writeNotes(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Enzymes are biological catalysts that speed up reactions in living cells.\n\n")
	}
	path := filepath.Join(t.TempDir(), "biology.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestIndexFile(t *testing.T) {
	store := chunkstore.NewMemory(2)
	ix := NewIndexer(processor.NewPDFProcessor(400, 50), lengthEmbedder{}, store, 3, nil)
	ctx := context.Background()

	doc, err := ix.IndexFile(ctx, writeNotes(t), models.DocumentTextbook)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionIndexed, doc.Status)
	assert.Equal(t, "biology.txt", doc.Filename)
	require.NotEmpty(t, doc.ChunkIDs)

	stored, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionIndexed, stored.Status)
	assert.Equal(t, doc.ChunkIDs, stored.ChunkIDs)

	hits, err := store.Search(ctx, []float64{1, 0}, []string{doc.ID}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestIndexFileMarksFailure(t *testing.T) {
	store := chunkstore.NewMemory(2)
	ix := NewIndexer(processor.NewPDFProcessor(400, 50), lengthEmbedder{fail: true}, store, 2, nil)
	ctx := context.Background()

	doc, err := ix.IndexFile(ctx, writeNotes(t), models.DocumentTextbook)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.UpstreamUnavailable))
	assert.Equal(t, models.IngestionFailed, doc.Status)

	stored, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionFailed, stored.Status)
	assert.Empty(t, stored.ChunkIDs)
}

func TestIndexFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n   \n"), 0o644))

	store := chunkstore.NewMemory(2)
	ix := NewIndexer(processor.NewPDFProcessor(400, 50), lengthEmbedder{}, store, 1, nil)
	doc, err := ix.IndexFile(context.Background(), path, models.DocumentSample)
	assert.Error(t, err)
	assert.Equal(t, models.IngestionFailed, doc.Status)
}
