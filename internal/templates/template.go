// Package templates holds paper templates, fills their slots with generated
// questions and checks the result against each template's structural invariants.
package templates

import (
	"fmt"
	"regexp"
	"strings"
)

// Invariant kinds
const (
	KindSlotCount        = "slot_count"
	KindNoPlaceholders   = "no_placeholders"
	KindContains         = "contains"
	KindEndsWith         = "ends_with"
	KindPatternCount     = "pattern_count"
	KindLiteralAfterSlot = "literal_after_slot"
	KindMarksTotal       = "marks_total"
)

// Invariant is one declarative structural check on a filled artifact
type Invariant struct {
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"`
	Pattern        string `yaml:"pattern,omitempty"`
	Literal        string `yaml:"literal,omitempty"`
	Count          int    `yaml:"count,omitempty"`
	Slot           string `yaml:"slot,omitempty"`
	SectionPattern string `yaml:"section_pattern,omitempty"`
	Attempt        int    `yaml:"attempt,omitempty"`

	re        *regexp.Regexp
	sectionRe *regexp.Regexp
	slotIndex int
}

// Template is a paper layout with named slots
type Template struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description,omitempty"`
	Body         string      `yaml:"body"`
	Slots        []string    `yaml:"slots"`
	MarksPerSlot int         `yaml:"marks_per_slot"`
	TotalMarks   int         `yaml:"total_marks"`
	Fields       []string    `yaml:"fields,omitempty"`
	Invariants   []Invariant `yaml:"invariants"`
}

// Placeholder renders the placeholder token for a slot or field name
func Placeholder(name string) string {
	return "{" + name + "}"
}

// compile checks the template and prepares its invariants
func (t *Template) compile() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template id is required")
	}
	if len(t.Slots) == 0 {
		return fmt.Errorf("template %s declares no slots", t.ID)
	}
	if t.MarksPerSlot <= 0 {
		return fmt.Errorf("template %s: marks_per_slot must be positive", t.ID)
	}
	if t.TotalMarks <= 0 {
		return fmt.Errorf("template %s: total_marks must be positive", t.ID)
	}

	seen := make(map[string]bool, len(t.Slots)+len(t.Fields))
	for _, name := range append(append([]string(nil), t.Slots...), t.Fields...) {
		if name == "" || strings.ContainsAny(name, "{} \t\n") {
			return fmt.Errorf("template %s: invalid placeholder name %q", t.ID, name)
		}
		if seen[name] {
			return fmt.Errorf("template %s: placeholder %q declared twice", t.ID, name)
		}
		seen[name] = true
	}
	for _, slot := range t.Slots {
		if n := strings.Count(t.Body, Placeholder(slot)); n != 1 {
			return fmt.Errorf("template %s: slot %s appears %d times in body, want 1", t.ID, slot, n)
		}
	}
	for _, field := range t.Fields {
		if !strings.Contains(t.Body, Placeholder(field)) {
			return fmt.Errorf("template %s: field %s does not appear in body", t.ID, field)
		}
	}

	names := make(map[string]bool, len(t.Invariants))
	for i := range t.Invariants {
		inv := &t.Invariants[i]
		if inv.Name == "" {
			inv.Name = inv.Kind
		}
		if names[inv.Name] {
			return fmt.Errorf("template %s: invariant %s declared twice", t.ID, inv.Name)
		}
		names[inv.Name] = true
		if err := inv.compile(t); err != nil {
			return fmt.Errorf("template %s: invariant %s: %w", t.ID, inv.Name, err)
		}
	}
	return nil
}

func (inv *Invariant) compile(t *Template) error {
	var err error
	if inv.Pattern != "" {
		if inv.re, err = regexp.Compile(inv.Pattern); err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
	}
	if inv.SectionPattern != "" {
		if inv.sectionRe, err = regexp.Compile(inv.SectionPattern); err != nil {
			return fmt.Errorf("bad section_pattern: %w", err)
		}
	}

	switch inv.Kind {
	case KindSlotCount:
		if inv.re == nil {
			return fmt.Errorf("pattern is required")
		}
	case KindNoPlaceholders:
	case KindContains:
		if inv.re == nil && inv.Literal == "" {
			return fmt.Errorf("pattern or literal is required")
		}
	case KindEndsWith:
		if inv.Literal == "" {
			return fmt.Errorf("literal is required")
		}
	case KindPatternCount:
		if inv.re == nil {
			return fmt.Errorf("pattern is required")
		}
	case KindLiteralAfterSlot:
		if inv.re == nil || inv.Literal == "" {
			return fmt.Errorf("pattern and literal are required")
		}
		inv.slotIndex = -1
		for i, s := range t.Slots {
			if s == inv.Slot {
				inv.slotIndex = i
			}
		}
		if inv.slotIndex < 0 {
			return fmt.Errorf("unknown slot %q", inv.Slot)
		}
	case KindMarksTotal:
		if inv.re == nil || inv.re.NumSubexp() < 1 {
			return fmt.Errorf("pattern with a marks capture group is required")
		}
	default:
		return fmt.Errorf("unknown kind %q", inv.Kind)
	}
	return nil
}
