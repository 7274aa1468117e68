package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(UpstreamTimeout, context.DeadlineExceeded)
	wrapped := fmt.Errorf("synthesis: %w", base)

	assert.Equal(t, UpstreamTimeout, KindOf(wrapped))
	assert.True(t, Is(wrapped, UpstreamTimeout))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestValidationCarriesViolations(t *testing.T) {
	err := Validation([]string{"ends_with_marker", "no_placeholders"})

	assert.Equal(t, StructuralValidationFailed, err.Kind)
	assert.Equal(t, []string{"ends_with_marker", "no_placeholders"}, ViolationsOf(fmt.Errorf("x: %w", err)))
	assert.Contains(t, err.Error(), "2 structural invariant(s) violated")
}

func TestNonRetryableKinds(t *testing.T) {
	for _, k := range []Kind{MalformedRequest, IncompleteGeneration, Cancelled, PromptTooLong} {
		assert.False(t, IsRetryable(New(k, nil)), string(k))
	}
}
