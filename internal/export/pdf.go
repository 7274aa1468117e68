package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Page geometry in millimetres for the A4 paper layout
const (
	pdfMargin   = 15.0
	pdfFontSize = 10.0
	pdfLineH    = 5.0
)

// RenderPDF lays the paper text out on A4 pages, one paper line per line of
// output. Lines wider than the page wrap onto following lines; lines are never
// merged or reordered.
func RenderPDF(text string) ([]byte, error) {
	return renderPDF(text, true)
}

func renderPDF(text string, compress bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetFont("Courier", "", pdfFontSize)
	pdf.AddPage()

	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			pdf.Ln(pdfLineH)
			continue
		}
		pdf.MultiCell(0, pdfLineH, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
