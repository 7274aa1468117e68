// Package parser splits raw synthesis output into one question per slot.
package parser

import (
	"regexp"
	"strings"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"
)

var (
	// markerRe matches a line that starts a new unit: "1.", "2)", "a)", "Q3:", "Question 4."
	markerRe = regexp.MustCompile(`^\s*(?:[-*#>]+\s*)?(?:\*\*)?(?:Q(?:uestion)?\s*)?(\d{1,3}|[a-zA-Z])(?:\*\*)?[.):](?:\*\*)?(?:\s+(.*))?$`)
	// marksRe strips a trailing marks annotation such as "[5 marks]" or "(5 Marks)"
	marksRe    = regexp.MustCompile(`(?i)\s*[\[(]\s*\d+\s*marks?\s*[\])]\s*$`)
	emphasisRe = regexp.MustCompile(`\*\*|__`)
)

// Parser extracts question units from generated text
type Parser struct {
	log *logger.Logger
}

// New creates a Parser
func New(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.NewNop()
	}
	return &Parser{log: log.With("component", "parser")}
}

// Parse returns exactly len(slots) questions bound to slots in order. Text
// before the first marker is ignored and unmarked lines continue the current
// unit until a blank line. Extra units are dropped with a warning, as are
// unmarked lines trailing the last expected question.
func (p *Parser) Parse(raw string, slots []string, marksPerSlot int) ([]models.GeneratedQuestion, error) {
	units := split(raw)
	if len(units) == 0 {
		return nil, apperr.Errorf(apperr.UnparsableOutput, "no delimited questions found in %d bytes of output", len(raw))
	}
	if len(units) < len(slots) {
		return nil, apperr.Errorf(apperr.IncompleteGeneration, "found %d questions, need %d", len(units), len(slots))
	}
	if len(units) > len(slots) {
		p.log.Warn("discarding surplus questions", "found", len(units), "expected", len(slots), "discarded", len(units)-len(slots))
		units = units[:len(slots)]
	}

	out := make([]models.GeneratedQuestion, len(slots))
	for i, slot := range slots {
		text := units[i].text()
		if i == len(slots)-1 && len(units[i].tail) > 0 {
			if head := clean(units[i].head); head != "" {
				p.log.Warn("dropping text after last question", "slot", slot, "lines", len(units[i].tail))
				text = head
			}
		}
		out[i] = models.GeneratedQuestion{Slot: slot, Text: text, Marks: marksPerSlot}
	}
	return out, nil
}

// Units splits raw into cleaned, non-empty question texts
func Units(raw string) []string {
	units := split(raw)
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.text()
	}
	return out
}

// unit is the text on a marker line plus the unmarked lines continuing it
type unit struct {
	head string
	tail []string
}

func (u unit) text() string {
	return clean(u.head + " " + strings.Join(u.tail, " "))
}

func split(raw string) []unit {
	var (
		units   []unit
		current *unit
		open    bool
	)
	flush := func() {
		if current != nil && current.text() != "" {
			units = append(units, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if m := markerRe.FindStringSubmatch(line); m != nil {
			flush()
			current, open = &unit{head: m[2]}, true
			continue
		}
		if !open {
			continue
		}
		if strings.TrimSpace(line) == "" {
			// A blank line closes a unit that already has text.
			open = current.text() == ""
			continue
		}
		current.tail = append(current.tail, line)
	}
	flush()
	return units
}

func clean(s string) string {
	s = emphasisRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = marksRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
