package models

import "time"

// DocumentType distinguishes subject material from the sample paper
type DocumentType string

const (
	DocumentTextbook DocumentType = "textbook"
	DocumentSample   DocumentType = "sample"
)

// IngestionStatus tracks where a document is in the indexing lifecycle
type IngestionStatus string

const (
	IngestionPending IngestionStatus = "pending"
	IngestionIndexed IngestionStatus = "indexed"
	IngestionFailed  IngestionStatus = "failed"
)

// Document is an uploaded source file known to the chunk store
type Document struct {
	ID        string          `json:"id"`
	Type      DocumentType    `json:"type"`
	Filename  string          `json:"filename"`
	Status    IngestionStatus `json:"status"`
	ChunkIDs  []string        `json:"chunk_ids,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Chunk is a bounded span of document text with its embedding
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Seq        int       `json:"seq"`
	PageNumber int       `json:"page_number"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

// ScoredChunk is a search hit with its similarity score
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SourceWeighting describes how much of a paper one document contributes
type SourceWeighting struct {
	DocumentID  string   `json:"document_id" yaml:"document_id"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Weight      int      `json:"weight_percentage" yaml:"weight"`
	FocusTopics []string `json:"focus_topics,omitempty" yaml:"focus_topics,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// Difficulty levels a source weighting may ask for
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ValidDifficulty reports whether d is empty or a known difficulty level
func ValidDifficulty(d string) bool {
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// DisplayName returns Name, falling back to the document id
func (w SourceWeighting) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.DocumentID
}

// GeneratedQuestion is one parsed question bound to a template slot
type GeneratedQuestion struct {
	Slot       string `json:"slot"`
	Text       string `json:"text"`
	Marks      int    `json:"marks"`
	DocumentID string `json:"document_id,omitempty"`
}

// ArtifactRef points at an exported, validated paper
type ArtifactRef struct {
	TextPath string `json:"text_path"`
	PDFPath  string `json:"pdf_path,omitempty"`
	JSONPath string `json:"json_path"`
	SHA256   string `json:"sha256"`
}
