package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

func sampleTemplate(t *testing.T) *Template {
	t.Helper()
	r, err := NewRegistry("")
	require.NoError(t, err)
	tpl, err := r.Get("sample-80")
	require.NoError(t, err)
	return tpl
}

func questionsFor(tpl *Template) []models.GeneratedQuestion {
	qs := make([]models.GeneratedQuestion, len(tpl.Slots))
	for i, slot := range tpl.Slots {
		qs[i] = models.GeneratedQuestion{
			Slot:  slot,
			Text:  fmt.Sprintf("Explain   the role of enzyme %d in\ndigestion.", i+1),
			Marks: tpl.MarksPerSlot,
		}
	}
	return qs
}

func fields() map[string]string {
	return map[string]string{"paper_code": PaperCode("job-1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))}
}

func TestBuiltinSampleTemplate(t *testing.T) {
	tpl := sampleTemplate(t)
	assert.Len(t, tpl.Slots, 20)
	assert.Equal(t, 5, tpl.MarksPerSlot)
	assert.Equal(t, 80, tpl.TotalMarks)
	assert.True(t, strings.HasSuffix(tpl.Body, "sssssss"))
}

func TestGetUnknownTemplate(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	_, err = r.Get("nope")
	assert.True(t, apperr.Is(err, apperr.TemplateNotFound))
	assert.Contains(t, r.IDs(), "sample-80")
}

func TestFillValidateRoundTrip(t *testing.T) {
	tpl := sampleTemplate(t)

	artifact, err := Fill(tpl, questionsFor(tpl), fields())
	require.NoError(t, err)

	assert.Empty(t, Validate(artifact, tpl))
	assert.Contains(t, artifact, "a) Explain the role of enzyme 1 in digestion. 5")
	assert.Contains(t, artifact, "MaKA24-")
}

func TestFillIsIdempotent(t *testing.T) {
	tpl := sampleTemplate(t)
	qs := questionsFor(tpl)

	first, err := Fill(tpl, qs, fields())
	require.NoError(t, err)
	second, err := Fill(tpl, qs, fields())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFillDoesNotRescanInsertedText(t *testing.T) {
	tpl := sampleTemplate(t)
	qs := questionsFor(tpl)
	qs[0].Text = "What does {Q1_B} mean?"

	artifact, err := Fill(tpl, qs, fields())
	require.NoError(t, err)
	assert.Contains(t, artifact, "a) What does {Q1_B} mean? 5")
	assert.Equal(t, []string{"no_placeholders"}, Validate(artifact, tpl))
}

func TestFillRejectsCountMismatch(t *testing.T) {
	tpl := sampleTemplate(t)
	_, err := Fill(tpl, questionsFor(tpl)[:19], fields())
	assert.Error(t, err)
}

func TestFillRejectsOutOfOrderSlots(t *testing.T) {
	tpl := sampleTemplate(t)
	qs := questionsFor(tpl)
	qs[0].Slot, qs[1].Slot = qs[1].Slot, qs[0].Slot
	_, err := Fill(tpl, qs, fields())
	assert.Error(t, err)
}

func TestFillRequiresFields(t *testing.T) {
	tpl := sampleTemplate(t)
	_, err := Fill(tpl, questionsFor(tpl), nil)
	assert.Error(t, err)
}

func TestValidateReportsViolations(t *testing.T) {
	tpl := sampleTemplate(t)
	artifact, err := Fill(tpl, questionsFor(tpl), fields())
	require.NoError(t, err)

	broken := strings.Replace(artifact, "(P.T.O.)", "", 1)
	broken = strings.TrimSuffix(broken, "sssssss") + "the end"
	broken = strings.Replace(broken, "Marks : 80", "Marks : 70", 1)

	assert.Equal(t, []string{"has_marks_80", "has_pto", "has_proper_ending"}, Validate(broken, tpl))
}

func TestValidateMarksTotal(t *testing.T) {
	tpl := sampleTemplate(t)
	artifact, err := Fill(tpl, questionsFor(tpl), fields())
	require.NoError(t, err)

	// Dropping one sub-question's marks still leaves four attemptable in that section.
	oneLess := strings.Replace(artifact, "enzyme 1 in digestion. 5", "enzyme 1 in digestion. 0", 1)
	assert.Empty(t, Validate(oneLess, tpl))

	twoLess := strings.Replace(oneLess, "enzyme 2 in digestion. 5", "enzyme 2 in digestion. 0", 1)
	assert.Equal(t, []string{"marks_total_80"}, Validate(twoLess, tpl))
}

func TestValidateLeftoverPlaceholder(t *testing.T) {
	tpl := sampleTemplate(t)
	assert.Contains(t, Validate(tpl.Body, tpl), "no_placeholders")
}

func TestPaperCodeIsDeterministic(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, PaperCode("abc", at), PaperCode("abc", at))
	assert.Contains(t, PaperCode("abc", at), "/EE/20240501")
}

const customTemplate = `
id: short-quiz
name: Short quiz
marks_per_slot: 10
total_marks: 20
slots: [one, two]
body: |-
  Quiz
  1) {one} [10]
  2) {two} [10]
  END
invariants:
  - name: two_questions
    kind: slot_count
    pattern: '(?m)^\d\) '
  - name: ends
    kind: ends_with
    literal: END
  - name: total
    kind: marks_total
    pattern: '\[(\d+)\]'
`

func TestRegistryLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quiz.yaml"), []byte(customTemplate), 0o644))

	r, err := NewRegistry(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"sample-80", "short-quiz"}, r.IDs())

	tpl, err := r.Get("short-quiz")
	require.NoError(t, err)
	artifact, err := Fill(tpl, []models.GeneratedQuestion{{Text: "A?"}, {Text: "B?"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Quiz\n1) A? [10]\n2) B? [10]\nEND", artifact)
	assert.Empty(t, Validate(artifact, tpl))
}

func TestParseRejectsBadTemplates(t *testing.T) {
	cases := map[string]string{
		"duplicate slot in body": `
id: x
marks_per_slot: 1
total_marks: 2
slots: [a]
body: "{a} {a}"
`,
		"bad regex": `
id: x
marks_per_slot: 1
total_marks: 1
slots: [a]
body: "{a}"
invariants:
  - name: broken
    kind: contains
    pattern: '(['
`,
		"unknown kind": `
id: x
marks_per_slot: 1
total_marks: 1
slots: [a]
body: "{a}"
invariants:
  - kind: vibes
`,
		"unknown slot": `
id: x
marks_per_slot: 1
total_marks: 1
slots: [a]
body: "{a}"
invariants:
  - kind: literal_after_slot
    slot: b
    pattern: 'x'
    literal: y
`,
		"zero marks": `
id: x
total_marks: 1
slots: [a]
body: "{a}"
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}
