// Package export writes validated papers to disk as text and PDF plus a JSON summary.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"exampaper-rag/internal/models"
)

// Input is a validated paper with the data that produced it
type Input struct {
	JobID      string
	TemplateID string
	Artifact   string
	TotalMarks int
	Questions  []models.GeneratedQuestion
	Sources    []models.SourceWeighting
	// Retrieved is the number of chunks retrieved per document
	Retrieved  map[string]int
	Violations []string
}

// SourceSummary reports how much of the paper came from one document
type SourceSummary struct {
	DocumentID  string   `json:"document_id"`
	Name        string   `json:"name"`
	Weight      int      `json:"weight_percentage"`
	Chunks      int      `json:"chunks_retrieved"`
	Questions   int      `json:"questions"`
	FocusTopics []string `json:"focus_topics,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
}

// Quality holds simple metrics over the generated questions
type Quality struct {
	TotalQuestions        int     `json:"total_questions"`
	TotalMarks            int     `json:"total_marks"`
	QuestionMarks         int     `json:"question_marks"`
	AverageQuestionLength float64 `json:"average_question_length"`
}

// Validation is the structural check outcome recorded with the paper
type Validation struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// Document is the JSON companion written next to the paper text
type Document struct {
	JobID       string                     `json:"job_id"`
	TemplateID  string                     `json:"template_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	SHA256      string                     `json:"sha256"`
	Questions   []models.GeneratedQuestion `json:"questions"`
	SourcesUsed []SourceSummary            `json:"sources_used"`
	Quality     Quality                    `json:"quality"`
	Validation  Validation                 `json:"validation"`
}

// FileExporter writes <job>.txt, <job>.pdf and <job>.json into Dir
type FileExporter struct {
	Dir string
	Now func() time.Time
}

// NewFileExporter creates an exporter rooted at dir
func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{Dir: dir, Now: time.Now}
}

// Export writes the paper unchanged plus its summary and returns where they are
func (e *FileExporter) Export(ctx context.Context, in Input) (*models.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}

	sum := sha256.Sum256([]byte(in.Artifact))
	digest := hex.EncodeToString(sum[:])

	textPath := filepath.Join(e.Dir, in.JobID+".txt")
	if err := writeFileAtomic(textPath, []byte(in.Artifact)); err != nil {
		return nil, err
	}

	rendered, err := RenderPDF(in.Artifact)
	if err != nil {
		return nil, err
	}
	pdfPath := filepath.Join(e.Dir, in.JobID+".pdf")
	if err := writeFileAtomic(pdfPath, rendered); err != nil {
		return nil, err
	}

	doc := Summarize(in)
	doc.SHA256 = digest
	doc.GeneratedAt = e.Now().UTC()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	jsonPath := filepath.Join(e.Dir, in.JobID+".json")
	if err := writeFileAtomic(jsonPath, data); err != nil {
		return nil, err
	}

	return &models.ArtifactRef{TextPath: textPath, PDFPath: pdfPath, JSONPath: jsonPath, SHA256: digest}, nil
}

// Summarize builds the JSON summary for in without timestamps or digest
func Summarize(in Input) Document {
	perSource := make(map[string]int)
	totalLen, questionMarks := 0, 0
	for _, q := range in.Questions {
		perSource[q.DocumentID]++
		totalLen += len(q.Text)
		questionMarks += q.Marks
	}

	doc := Document{
		JobID:      in.JobID,
		TemplateID: in.TemplateID,
		Questions:  in.Questions,
		Quality: Quality{
			TotalQuestions: len(in.Questions),
			TotalMarks:     in.TotalMarks,
			QuestionMarks:  questionMarks,
		},
		Validation: Validation{
			Valid:      len(in.Violations) == 0,
			Violations: append([]string{}, in.Violations...),
		},
	}
	if len(in.Questions) > 0 {
		doc.Quality.AverageQuestionLength = float64(totalLen) / float64(len(in.Questions))
	}
	for _, s := range in.Sources {
		doc.SourcesUsed = append(doc.SourcesUsed, SourceSummary{
			DocumentID:  s.DocumentID,
			Name:        s.DisplayName(),
			Weight:      s.Weight,
			Chunks:      in.Retrieved[s.DocumentID],
			Questions:   perSource[s.DocumentID],
			FocusTopics: s.FocusTopics,
			Difficulty:  s.Difficulty,
		})
	}
	return doc
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
