package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
)

func slots(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("S%d", i+1)
	}
	return out
}

func numbered(n int) string {
	var b strings.Builder
	b.WriteString("Here are the questions you asked for:\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. Explain concept number %d.\n", i, i)
	}
	return b.String()
}

func TestParseTruncatesSurplus(t *testing.T) {
	qs, err := New(nil).Parse(numbered(22), slots(20), 5)
	require.NoError(t, err)
	require.Len(t, qs, 20)
	assert.Equal(t, "Explain concept number 1.", qs[0].Text)
	assert.Equal(t, "Explain concept number 20.", qs[19].Text)
	assert.Equal(t, "S20", qs[19].Slot)
	assert.Equal(t, 5, qs[19].Marks)
}

func TestParseIncomplete(t *testing.T) {
	_, err := New(nil).Parse(numbered(18), slots(20), 5)
	assert.True(t, apperr.Is(err, apperr.IncompleteGeneration))
}

func TestParseUnparsable(t *testing.T) {
	_, err := New(nil).Parse("I'm sorry, I cannot help with that request.", slots(20), 5)
	assert.True(t, apperr.Is(err, apperr.UnparsableOutput))

	_, err = New(nil).Parse("", slots(1), 5)
	assert.True(t, apperr.Is(err, apperr.UnparsableOutput))
}

func TestUnitsMarkerStyles(t *testing.T) {
	raw := strings.Join([]string{
		"Sure!",
		"1) Define osmosis",
		"a) Describe diffusion",
		"Q3: Compare mitosis and meiosis",
		"Question 4. What is ATP?",
		"**5.** Explain **photosynthesis** [5 marks]",
		"- 6. Name two enzymes (5 Marks)",
	}, "\n")

	assert.Equal(t, []string{
		"Define osmosis",
		"Describe diffusion",
		"Compare mitosis and meiosis",
		"What is ATP?",
		"Explain photosynthesis",
		"Name two enzymes",
	}, Units(raw))
}

func TestUnitsContinuationLines(t *testing.T) {
	raw := "1. Explain the structure of the\n   cell membrane.\n2.\nDescribe active transport.\n\nI hope these help!"

	assert.Equal(t, []string{
		"Explain the structure of the cell membrane.",
		"Describe active transport.",
	}, Units(raw))
}

func TestUnitsDropsEmpty(t *testing.T) {
	raw := "1. First\n2.   \n3. Third"
	assert.Equal(t, []string{"First", "Third"}, Units(raw))
}

func TestUnitsHandlesCRLF(t *testing.T) {
	assert.Equal(t, []string{"One", "Two"}, Units("1. One\r\n2. Two\r\n"))
}

func TestParseDropsCommentaryAfterLastQuestion(t *testing.T) {
	raw := "1. Define osmosis.\n2. Explain diffusion.\nThese questions cover the key topics."

	qs, err := New(nil).Parse(raw, slots(2), 5)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Define osmosis.", qs[0].Text)
	assert.Equal(t, "Explain diffusion.", qs[1].Text)
}

func TestParseKeepsWrappedEarlierQuestions(t *testing.T) {
	raw := "1. Explain the structure of the\n   cell membrane.\n2.\nDescribe active transport."

	qs, err := New(nil).Parse(raw, slots(2), 5)
	require.NoError(t, err)
	assert.Equal(t, "Explain the structure of the cell membrane.", qs[0].Text)
	assert.Equal(t, "Describe active transport.", qs[1].Text)
}
