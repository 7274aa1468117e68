// Package processor turns source documents into overlapping text chunks.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"exampaper-rag/internal/models"
)

var (
	paragraphRe = regexp.MustCompile(`\n[ \t]*\n+`)
	hyphenRe    = regexp.MustCompile(`(\p{L})-\n[ \t]*(\p{L})`)
	// lines that are nothing but a page number, e.g. "12", "Page 3", "- 4 -", "3 of 10"
	pageNumberRe = regexp.MustCompile(`(?i)^[\s\-–]*(page\s+)?\d+(\s+of\s+\d+)?[\s\-–]*$`)
)

// Page is the extracted text of one page, numbered from 1
type Page struct {
	Number int
	Text   string
}

// PDFProcessor handles PDF processing
type PDFProcessor struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &PDFProcessor{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// ExtractPages extracts the text of every page of a PDF file
func (p *PDFProcessor) ExtractPages(filePath string) ([]Page, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	fonts := make(map[string]*pdf.Font)
	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		pg := r.Page(i)
		if pg.V.IsNull() {
			continue
		}
		for _, name := range pg.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := pg.Font(name)
				fonts[name] = &font
			}
		}
		text, err := pg.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// ProcessFile extracts and chunks a PDF, or a plain text file which is
// treated as a single page.
func (p *PDFProcessor) ProcessFile(ctx context.Context, filePath, documentID string) ([]models.Chunk, error) {
	var pages []Page
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".txt", ".md":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
		}
		pages = []Page{{Number: 1, Text: string(data)}}
	default:
		var err error
		if pages, err = p.ExtractPages(filePath); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Chunk(documentID, pages), nil
}

type paragraph struct {
	text string
	page int
}

// Chunk splits pages into chunks of at most ChunkSize bytes. Consecutive
// chunks share about ChunkOverlap bytes, cut at a word boundary. A chunk
// carries the number of the page its new text starts on.
func (p *PDFProcessor) Chunk(documentID string, pages []Page) []models.Chunk {
	pieceMax := p.ChunkSize - p.ChunkOverlap - 1
	if pieceMax < 1 {
		pieceMax = 1
	}

	var (
		chunks []models.Chunk
		buf    strings.Builder
		page   int
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Seq:        len(chunks),
			PageNumber: page,
			Text:       text,
		})
	}

	for _, para := range p.paragraphs(pages) {
		for _, piece := range splitLong(para.text, pieceMax) {
			if buf.Len() > 0 && buf.Len()+1+len(piece) > p.ChunkSize {
				flush()
				tail := overlapTail(chunks[len(chunks)-1].Text, p.ChunkOverlap)
				buf.Reset()
				buf.WriteString(tail)
				page = para.page
			}
			if buf.Len() == 0 {
				page = para.page
			} else {
				buf.WriteByte(' ')
			}
			buf.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// paragraphs cleans each page and splits it on blank lines
func (p *PDFProcessor) paragraphs(pages []Page) []paragraph {
	var out []paragraph
	for _, pg := range pages {
		text := removePageNumbers(pg.Text)
		text = hyphenRe.ReplaceAllString(text, "$1$2")
		for _, raw := range paragraphRe.Split(text, -1) {
			if norm := normalizeWhitespace(raw); norm != "" {
				out = append(out, paragraph{text: norm, page: pg.Number})
			}
		}
	}
	return out
}

// removePageNumbers blanks page-number lines among the first and last two
// non-empty lines of a page.
func removePageNumbers(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	seen := 0
	for i := 0; i < len(lines) && seen < 2; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		seen++
		if !isPageNumber(lines[i]) {
			break
		}
		lines[i] = ""
	}
	seen = 0
	for i := len(lines) - 1; i >= 0 && seen < 2; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		seen++
		if !isPageNumber(lines[i]) {
			break
		}
		lines[i] = ""
	}
	return strings.Join(lines, "\n")
}

func isPageNumber(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && pageNumberRe.MatchString(line)
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitLong breaks text into word-aligned pieces of at most max bytes
func splitLong(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var (
		out []string
		cur strings.Builder
	)
	for _, word := range strings.Fields(text) {
		for len(word) > max {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			cut := max
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(word)
			}
			out = append(out, word[:cut])
			word = word[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// overlapTail returns roughly the last n bytes of text, starting at a word
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	start := len(text) - n
	if i := strings.IndexByte(text[start:], ' '); i >= 0 {
		start += i + 1
	} else {
		return ""
	}
	return text[start:]
}
