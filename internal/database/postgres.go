package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ivfLists is the number of ivfflat lists; searches probe all of them so
// filtered queries stay exact.
const ivfLists = 100

// DB represents the database connection
type DB struct {
	Pool      *pgxpool.Pool
	VectorDim int
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string, vectorDim int) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool, VectorDim: vectorDim}, nil
}

// Initialize sets up the database tables and indices
func (db *DB) Initialize(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS documents (
            id TEXT PRIMARY KEY,
            doc_type TEXT NOT NULL,
            filename TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	// Create table for chunks with vector extension
	_, err = db.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS chunks (
            id TEXT PRIMARY KEY,
            document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
            seq INTEGER NOT NULL,
            page_number INTEGER NOT NULL DEFAULT 0,
            content TEXT NOT NULL,
            inserted_at BIGSERIAL,
            embedding vector(%d) NOT NULL
        )
    `, db.VectorDim))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	// Create vector index
	_, err = db.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)
	`, ivfLists))
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id, seq)`)
	if err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

// CreateDocument inserts or replaces a document record
func (db *DB) CreateDocument(ctx context.Context, doc *models.Document) error {
	status := doc.Status
	if status == "" {
		status = models.IngestionPending
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO documents (id, doc_type, filename, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE
        SET doc_type = EXCLUDED.doc_type, filename = EXCLUDED.filename, status = EXCLUDED.status
    `, doc.ID, string(doc.Type), doc.Filename, string(status), created)
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	return nil
}

// SetDocumentStatus updates the ingestion status of a document
func (db *DB) SetDocumentStatus(ctx context.Context, id string, status models.IngestionStatus) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE documents SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// StoreChunks stores chunks in a single batch
func (db *DB) StoreChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
            INSERT INTO chunks (id, document_id, seq, page_number, content, embedding)
            VALUES ($1, $2, $3, $4, $5, $6::float8[]::vector)
        `, c.ID, c.DocumentID, c.Seq, c.PageNumber, c.Text, c.Embedding)
	}

	results := db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to store chunk: %w", err)
		}
	}
	return nil
}

// GetDocument loads a document with its chunk ids
func (db *DB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var (
		doc             models.Document
		docType, status string
	)
	err := db.Pool.QueryRow(ctx, `
        SELECT id, doc_type, filename, status, created_at FROM documents WHERE id = $1
    `, id).Scan(&doc.ID, &docType, &doc.Filename, &status, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Errorf(apperr.DocumentNotReady, "document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	doc.Type = models.DocumentType(docType)
	doc.Status = models.IngestionStatus(status)

	rows, err := db.Pool.Query(ctx, `SELECT id FROM chunks WHERE document_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk ids: %w", err)
	}
	doc.ChunkIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk ids: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns every document without chunk ids
func (db *DB) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, doc_type, filename, status, created_at FROM documents ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			doc             models.Document
			docType, status string
		)
		if err := rows.Scan(&doc.ID, &docType, &doc.Filename, &status, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Type = models.DocumentType(docType)
		doc.Status = models.IngestionStatus(status)
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; its chunks go with it
func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Search finds the chunks most similar to embedding among the given documents
func (db *DB) Search(ctx context.Context, embedding []float64, documentIDs []string, k int) ([]models.ScoredChunk, error) {
	if err := db.ensureIndexed(ctx, documentIDs); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin search: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ivfflat.probes = %d`, ivfLists)); err != nil {
		return nil, fmt.Errorf("failed to set probes: %w", err)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, document_id, seq, page_number, content,
		       1 - (embedding <=> $1::float8[]::vector) AS score
		FROM chunks
		WHERE document_id = ANY($2)
		ORDER BY embedding <=> $1::float8[]::vector, inserted_at
		LIMIT $3
	`, embedding, documentIDs, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	return processRows(rows)
}

// ensureIndexed fails with NotIndexed when any document has no chunks
func (db *DB) ensureIndexed(ctx context.Context, documentIDs []string) error {
	rows, err := db.Pool.Query(ctx, `
		SELECT document_id, count(*) FROM chunks WHERE document_id = ANY($1) GROUP BY document_id
	`, documentIDs)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, len(documentIDs))
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	for _, id := range documentIDs {
		if counts[id] == 0 {
			return apperr.Errorf(apperr.NotIndexed, "document %s has no chunks", id)
		}
	}
	return nil
}

func processRows(rows pgx.Rows) ([]models.ScoredChunk, error) {
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var hit models.ScoredChunk
		if err := rows.Scan(
			&hit.Chunk.ID,
			&hit.Chunk.DocumentID,
			&hit.Chunk.Seq,
			&hit.Chunk.PageNumber,
			&hit.Chunk.Text,
			&hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return hits, nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}
