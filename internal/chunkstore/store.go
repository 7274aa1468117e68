// Package chunkstore defines the chunk store contracts used by the pipeline
// and an in-memory implementation of them.
package chunkstore

import (
	"context"
	"math"

	"exampaper-rag/internal/models"
)

// Searcher performs nearest-neighbour search scoped to a set of documents.
// Results are ordered by similarity descending, ties by insertion order.
// Implementations fail with apperr.NotIndexed when an allowed document has no chunks.
type Searcher interface {
	Search(ctx context.Context, vector []float64, documentIDs []string, k int) ([]models.ScoredChunk, error)
}

// DocumentSource is the read side of the ingestion subsystem.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// Sink receives the output of ingestion.
type Sink interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	StoreChunks(ctx context.Context, chunks []models.Chunk) error
	SetDocumentStatus(ctx context.Context, id string, status models.IngestionStatus) error
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
