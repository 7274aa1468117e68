// Package prompt composes the synthesis request for one paper: one
// instruction block per template slot.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
	"exampaper-rag/internal/retriever"
	"exampaper-rag/internal/templates"
)

//go:embed templates/*
var templatesFS embed.FS

// charsPerToken is the rough size estimate used by the length guard
const charsPerToken = 4

// maxPromptShare is the share of the model's token limit a prompt may use
const maxPromptShare = 0.7

// Input is everything a prompt is built from
type Input struct {
	Template     *templates.Template
	Weightings   []models.SourceWeighting
	Retrieved    map[string][]models.ScoredChunk
	Instructions string
}

// Prompt is the rendered request plus the source document chosen for each slot
type Prompt struct {
	Text        string
	SlotSources []string
}

// Builder renders prompts
type Builder struct {
	ExcerptChars int
	MaxTokens    int

	tmpl *template.Template
}

// NewBuilder parses the embedded prompt template. maxTokens of 0 disables
// the length guard.
func NewBuilder(excerptChars, maxTokens int) (*Builder, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/questions.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	if excerptChars <= 0 {
		excerptChars = 400
	}
	return &Builder{ExcerptChars: excerptChars, MaxTokens: maxTokens, tmpl: tmpl}, nil
}

type block struct {
	Number      int
	Source      string
	Marks       int
	Material    string
	Difficulty  string
	FocusTopics string
}

type view struct {
	SlotCount    int
	MarksPerSlot int
	TotalMarks   int
	Blocks       []block
	Instructions string
}

// Build renders the prompt for in
func (b *Builder) Build(in Input) (*Prompt, error) {
	tpl := in.Template
	slots := len(tpl.Slots)

	allocs, err := retriever.Allocate(in.Weightings, slots)
	if err != nil {
		return nil, err
	}

	v := view{
		SlotCount:    slots,
		MarksPerSlot: tpl.MarksPerSlot,
		TotalMarks:   tpl.TotalMarks,
		Instructions: strings.TrimSpace(in.Instructions),
	}
	p := &Prompt{SlotSources: make([]string, 0, slots)}

	fallback := richestSource(in.Retrieved, in.Weightings)
	for i, a := range allocs {
		w := in.Weightings[i]
		chunks := in.Retrieved[w.DocumentID]
		source := w.DocumentID
		if len(chunks) == 0 && a.Count > 0 && fallback != "" {
			// The sparse source gave its budget away during retrieval.
			chunks = in.Retrieved[fallback]
			source = fallback
		}
		for j := 0; j < a.Count; j++ {
			v.Blocks = append(v.Blocks, block{
				Number:      len(v.Blocks) + 1,
				Source:      displayName(w, source),
				Marks:       tpl.MarksPerSlot,
				Material:    b.material(chunks, j, a.Count),
				Difficulty:  w.Difficulty,
				FocusTopics: strings.Join(w.FocusTopics, ", "),
			})
			p.SlotSources = append(p.SlotSources, source)
		}
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}
	p.Text = buf.String()

	if b.MaxTokens > 0 {
		estimated := len(p.Text) / charsPerToken
		limit := int(float64(b.MaxTokens) * maxPromptShare)
		if estimated >= limit {
			return nil, apperr.Errorf(apperr.PromptTooLong, "prompt is ~%d tokens, limit is %d", estimated, limit)
		}
	}
	return p, nil
}

// material spreads a source's chunks over its slots: slot j of n takes
// chunks j, j+n, j+2n and so on, cut to ExcerptChars.
func (b *Builder) material(chunks []models.ScoredChunk, j, n int) string {
	if len(chunks) == 0 {
		return "general subject knowledge"
	}
	var parts []string
	for k := j % len(chunks); k < len(chunks); k += n {
		parts = append(parts, strings.Join(strings.Fields(chunks[k].Chunk.Text), " "))
	}
	return truncate(strings.Join(parts, " "), b.ExcerptChars)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func richestSource(retrieved map[string][]models.ScoredChunk, weightings []models.SourceWeighting) string {
	best, most := "", 0
	for _, w := range weightings {
		if n := len(retrieved[w.DocumentID]); n > most {
			best, most = w.DocumentID, n
		}
	}
	return best
}

func displayName(w models.SourceWeighting, source string) string {
	if source != w.DocumentID {
		return source
	}
	return w.DisplayName()
}
