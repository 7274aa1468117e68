package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "sk-123", "job_id", "abc", "max_tokens", 4000, "dangling"})

	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "job_id", "abc", "max_tokens", 4000, "dangling"}, out)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("dev", "loud")
	assert.Error(t, err)

	l, err := New("prod", "warn")
	assert.NoError(t, err)
	assert.NotNil(t, l)
}
