package chunkstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

func seed(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory(2)
	require.NoError(t, m.CreateDocument(ctx, &models.Document{ID: "t1", Type: models.DocumentTextbook}))
	require.NoError(t, m.CreateDocument(ctx, &models.Document{ID: "t2", Type: models.DocumentTextbook}))
	require.NoError(t, m.StoreChunks(ctx, []models.Chunk{
		{ID: "a", DocumentID: "t1", Embedding: []float64{1, 0}, Text: "alpha"},
		{ID: "b", DocumentID: "t2", Embedding: []float64{1, 0}, Text: "beta"},
		{ID: "c", DocumentID: "t1", Embedding: []float64{0, 1}, Text: "gamma"},
		{ID: "d", DocumentID: "t1", Embedding: []float64{1, 0}, Text: "delta"},
	}))
	return m
}

func TestSearchRestrictsToAllowedDocuments(t *testing.T) {
	m := seed(t)

	hits, err := m.Search(context.Background(), []float64{1, 0}, []string{"t1"}, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		assert.Equal(t, "t1", h.Chunk.DocumentID)
		ids = append(ids, h.Chunk.ID)
	}
	// a and d tie on score; insertion order decides.
	assert.Equal(t, []string{"a", "d", "c"}, ids)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestSearchHonoursK(t *testing.T) {
	m := seed(t)

	hits, err := m.Search(context.Background(), []float64{1, 0}, []string{"t1", "t2"}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.Equal(t, "b", hits[1].Chunk.ID)
}

func TestSearchNotIndexed(t *testing.T) {
	m := seed(t)
	require.NoError(t, m.CreateDocument(context.Background(), &models.Document{ID: "empty"}))

	_, err := m.Search(context.Background(), []float64{1, 0}, []string{"t1", "empty"}, 3)
	assert.True(t, apperr.Is(err, apperr.NotIndexed))
}

func TestStoreChunksRejectsWrongDimension(t *testing.T) {
	m := seed(t)
	err := m.StoreChunks(context.Background(), []models.Chunk{{ID: "x", DocumentID: "t1", Embedding: []float64{1}}})
	assert.Error(t, err)
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	require.NoError(t, m.DeleteDocument(ctx, "t1"))

	_, err := m.GetDocument(ctx, "t1")
	assert.True(t, apperr.Is(err, apperr.DocumentNotReady))

	hits, err := m.Search(ctx, []float64{1, 0}, []string{"t2"}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGetDocumentTracksChunkIDs(t *testing.T) {
	m := seed(t)
	doc, err := m.GetDocument(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, doc.ChunkIDs)
	assert.Equal(t, models.IngestionPending, doc.Status)
}
