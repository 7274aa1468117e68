// Package ingest indexes source documents into a chunk store.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"exampaper-rag/internal/chunkstore"
	"exampaper-rag/internal/embedding"
	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"
	"exampaper-rag/internal/processor"
)

// Indexer extracts, chunks and embeds a file, then stores the result and
// marks the document indexed. Any failure marks it failed instead.
type Indexer struct {
	Processor     *processor.PDFProcessor
	Embedder      embedding.Embedder
	Sink          chunkstore.Sink
	MaxConcurrent int
	Now           func() time.Time

	log *logger.Logger
}

// NewIndexer creates an Indexer
func NewIndexer(p *processor.PDFProcessor, e embedding.Embedder, sink chunkstore.Sink, maxConcurrent int, log *logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Indexer{
		Processor:     p,
		Embedder:      e,
		Sink:          sink,
		MaxConcurrent: maxConcurrent,
		Now:           time.Now,
		log:           log.With("component", "indexer"),
	}
}

// IndexFile registers path as a new document and indexes it. The returned
// document is valid even when err is not nil, so callers can report its id.
func (ix *Indexer) IndexFile(ctx context.Context, path string, docType models.DocumentType) (*models.Document, error) {
	doc := &models.Document{
		ID:        uuid.NewString(),
		Type:      docType,
		Filename:  filepath.Base(path),
		Status:    models.IngestionPending,
		CreatedAt: ix.Now().UTC(),
	}
	if err := ix.Sink.CreateDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("failed to register document: %w", err)
	}
	log := ix.log.With("document_id", doc.ID, "file", doc.Filename)

	start := time.Now()
	chunkIDs, err := ix.index(ctx, doc, path, log)
	if err != nil {
		log.Error("Indexing failed", "error", err)
		doc.Status = models.IngestionFailed
		// the caller's ctx may be what failed, record the status regardless
		if serr := ix.Sink.SetDocumentStatus(context.WithoutCancel(ctx), doc.ID, models.IngestionFailed); serr != nil {
			log.Error("Failed to mark document failed", "error", serr)
		}
		return doc, err
	}

	if err := ix.Sink.SetDocumentStatus(ctx, doc.ID, models.IngestionIndexed); err != nil {
		return doc, fmt.Errorf("failed to mark document indexed: %w", err)
	}
	doc.Status = models.IngestionIndexed
	doc.ChunkIDs = chunkIDs
	log.Info("Document indexed", "chunks", len(chunkIDs), "elapsed", time.Since(start).Round(time.Millisecond).String())
	return doc, nil
}

func (ix *Indexer) index(ctx context.Context, doc *models.Document, path string, log *logger.Logger) ([]string, error) {
	chunks, err := ix.Processor.ProcessFile(ctx, path, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to process %s: %w", doc.Filename, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text could be extracted from %s", doc.Filename)
	}
	log.Info("Extracted chunks", "count", len(chunks))

	embedStart := time.Now()
	progress := func(processed, total int) {
		if processed%25 != 0 && processed != total {
			return
		}
		elapsed := time.Since(embedStart)
		remaining := elapsed*time.Duration(total)/time.Duration(processed) - elapsed
		log.Info("Embedding progress", "processed", processed, "total", total,
			"remaining", remaining.Round(time.Second).String())
	}
	if err := embedding.EmbedChunks(ctx, ix.Embedder, chunks, ix.MaxConcurrent, progress); err != nil {
		return nil, err
	}

	if err := ix.Sink.StoreChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}
