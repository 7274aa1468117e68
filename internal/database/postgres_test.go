package database

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

const testDim = 384

func vector(x, y float64) []float64 {
	v := make([]float64, testDim)
	v[0], v[1] = x, y
	return v
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, url, testDim)
	require.NoError(t, err)
	require.NoError(t, db.Initialize(ctx))
	t.Cleanup(db.Close)
	return db
}

func TestDocumentLifecycleAndSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	doc := &models.Document{ID: "test-" + uuid.NewString(), Type: models.DocumentTextbook, Filename: "bio.pdf"}
	require.NoError(t, db.CreateDocument(ctx, doc))
	t.Cleanup(func() { _ = db.DeleteDocument(context.Background(), doc.ID) })

	got, err := db.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionPending, got.Status)

	_, err = db.Search(ctx, vector(1, 0), []string{doc.ID}, 3)
	assert.True(t, apperr.Is(err, apperr.NotIndexed))

	chunks := make([]models.Chunk, 5)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("%s-%d", doc.ID, i),
			DocumentID: doc.ID,
			Seq:        i,
			PageNumber: 1,
			Text:       fmt.Sprintf("passage %d", i),
			// chunks 1 and 2 tie
			Embedding: vector(1, []float64{0.5, 0.1, 0.1, 0.9, 2}[i]),
		}
	}
	require.NoError(t, db.StoreChunks(ctx, chunks))
	require.NoError(t, db.SetDocumentStatus(ctx, doc.ID, models.IngestionIndexed))

	got, err = db.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionIndexed, got.Status)
	assert.Len(t, got.ChunkIDs, 5)

	hits, err := db.Search(ctx, vector(1, 0), []string{doc.ID}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, chunks[1].ID, hits[0].Chunk.ID)
	assert.Equal(t, chunks[2].ID, hits[1].Chunk.ID, "ties keep insertion order")
	assert.Equal(t, chunks[0].ID, hits[2].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[2].Score)

	_, err = db.GetDocument(ctx, "missing-"+uuid.NewString())
	assert.True(t, apperr.Is(err, apperr.DocumentNotReady))
}
