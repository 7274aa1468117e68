package chunkstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

// Memory is an in-process chunk store using brute-force cosine similarity.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]*models.Document
	chunks    []models.Chunk
	perDoc    map[string]int
}

// NewMemory creates an empty store. dimension 0 accepts any vector length.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		docs:      make(map[string]*models.Document),
		perDoc:    make(map[string]int),
	}
}

// CreateDocument registers doc, replacing any previous record with the same id.
func (m *Memory) CreateDocument(_ context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	d.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
	if d.Status == "" {
		d.Status = models.IngestionPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.docs[d.ID] = &d
	return nil
}

// StoreChunks appends chunks; their documents must already exist.
func (m *Memory) StoreChunks(_ context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		doc, ok := m.docs[c.DocumentID]
		if !ok {
			return fmt.Errorf("chunk %s references unknown document %s", c.ID, c.DocumentID)
		}
		if m.dimension > 0 && len(c.Embedding) != m.dimension {
			return fmt.Errorf("chunk %s: embedding dimension %d, want %d", c.ID, len(c.Embedding), m.dimension)
		}
		c.Embedding = append([]float64(nil), c.Embedding...)
		m.chunks = append(m.chunks, c)
		m.perDoc[c.DocumentID]++
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
	}
	return nil
}

// SetDocumentStatus updates the ingestion status of a document.
func (m *Memory) SetDocumentStatus(_ context.Context, id string, status models.IngestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	doc.Status = status
	return nil
}

// GetDocument returns a copy of the document record.
func (m *Memory) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperr.Errorf(apperr.DocumentNotReady, "document %s not found", id)
	}
	d := *doc
	d.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
	return &d, nil
}

// ListDocuments returns all documents ordered by creation time.
func (m *Memory) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteDocument removes a document together with its chunks.
func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	delete(m.perDoc, id)
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != id {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// Search implements Searcher.
func (m *Memory) Search(ctx context.Context, vector []float64, documentIDs []string, k int) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		if m.perDoc[id] == 0 {
			return nil, apperr.Errorf(apperr.NotIndexed, "document %s has no chunks", id)
		}
		allowed[id] = struct{}{}
	}
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	hits := make([]models.ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if _, ok := allowed[c.DocumentID]; !ok {
			continue
		}
		hits = append(hits, models.ScoredChunk{Chunk: c, Score: Cosine(vector, c.Embedding)})
	}
	// Stable keeps insertion order among equal scores.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
