package templates

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"exampaper-rag/internal/models"
)

// Fill substitutes every slot with its question and every field with its
// value in a single pass, so inserted text is never rescanned. Questions
// must match the template's slots in count and order.
func Fill(tpl *Template, questions []models.GeneratedQuestion, fields map[string]string) (string, error) {
	if len(questions) != len(tpl.Slots) {
		return "", fmt.Errorf("template %s needs %d questions, got %d", tpl.ID, len(tpl.Slots), len(questions))
	}

	pairs := make([]string, 0, 2*(len(tpl.Slots)+len(tpl.Fields)))
	for i, slot := range tpl.Slots {
		q := questions[i]
		if q.Slot != "" && q.Slot != slot {
			return "", fmt.Errorf("question %d is bound to slot %s, want %s", i+1, q.Slot, slot)
		}
		text := strings.Join(strings.Fields(q.Text), " ")
		if text == "" {
			return "", fmt.Errorf("question for slot %s is empty", slot)
		}
		pairs = append(pairs, Placeholder(slot), text)
	}
	for _, field := range tpl.Fields {
		v, ok := fields[field]
		if !ok {
			return "", fmt.Errorf("template %s: missing value for field %s", tpl.ID, field)
		}
		pairs = append(pairs, Placeholder(field), v)
	}

	return strings.NewReplacer(pairs...).Replace(tpl.Body), nil
}

// Validate checks artifact against every invariant of tpl and returns the
// names of those violated, in declaration order.
func Validate(artifact string, tpl *Template) []string {
	var violations []string
	for i := range tpl.Invariants {
		inv := &tpl.Invariants[i]
		if !inv.holds(artifact, tpl) {
			violations = append(violations, inv.Name)
		}
	}
	return violations
}

func (inv *Invariant) holds(artifact string, tpl *Template) bool {
	switch inv.Kind {
	case KindSlotCount:
		want := inv.Count
		if want == 0 {
			want = len(tpl.Slots)
		}
		return len(inv.re.FindAllStringIndex(artifact, -1)) == want
	case KindNoPlaceholders:
		if inv.re != nil {
			return !inv.re.MatchString(artifact)
		}
		for _, name := range append(append([]string(nil), tpl.Slots...), tpl.Fields...) {
			if strings.Contains(artifact, Placeholder(name)) {
				return false
			}
		}
		return true
	case KindContains:
		if inv.re != nil {
			return inv.re.MatchString(artifact)
		}
		return strings.Contains(artifact, inv.Literal)
	case KindEndsWith:
		return strings.HasSuffix(strings.TrimRight(artifact, " \t\r\n"), inv.Literal)
	case KindPatternCount:
		return len(inv.re.FindAllStringIndex(artifact, -1)) == inv.Count
	case KindLiteralAfterSlot:
		return inv.literalAfterSlot(artifact)
	case KindMarksTotal:
		return marksTotal(artifact, inv) == tpl.TotalMarks
	}
	return false
}

// literalAfterSlot reports whether the literal sits between the question line
// of the slot and the following question line.
func (inv *Invariant) literalAfterSlot(artifact string) bool {
	lines := inv.re.FindAllStringIndex(artifact, -1)
	if inv.slotIndex >= len(lines) {
		return false
	}
	start := lines[inv.slotIndex][1]
	end := len(artifact)
	if inv.slotIndex+1 < len(lines) {
		end = lines[inv.slotIndex+1][0]
	}
	return strings.Contains(artifact[start:end], inv.Literal)
}

// marksTotal sums the marks captured on question lines. With a section
// pattern the artifact is split at each section header and only the best
// Attempt marks of each section count.
func marksTotal(artifact string, inv *Invariant) int {
	var bounds []int
	if inv.sectionRe != nil {
		for _, loc := range inv.sectionRe.FindAllStringIndex(artifact, -1) {
			bounds = append(bounds, loc[0])
		}
	}
	bounds = append(bounds, len(artifact))

	total := 0
	from := 0
	for _, to := range bounds {
		total += sectionMarks(artifact[from:to], inv)
		from = to
	}
	return total
}

func sectionMarks(section string, inv *Invariant) int {
	var marks []int
	for _, m := range inv.re.FindAllStringSubmatch(section, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		marks = append(marks, n)
	}
	if inv.Attempt > 0 && len(marks) > inv.Attempt {
		sort.Sort(sort.Reverse(sort.IntSlice(marks)))
		marks = marks[:inv.Attempt]
	}
	sum := 0
	for _, n := range marks {
		sum += n
	}
	return sum
}

// PaperCode derives a paper code from the job id and its creation time.
// The same inputs always give the same code.
func PaperCode(jobID string, created time.Time) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	sum := h.Sum32()
	suffix := fmt.Sprintf("T97/BMG%d/EE/%s", 301+sum%99, created.Format("20060102"))
	return fmt.Sprintf("MaKA%s-%d %s : 1%s", created.Format("06"), 2000+(sum>>8)%1000, suffix, suffix)
}
