package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName_Valid(t *testing.T) {
	validNames := []string{
		"quote.create",
		"processOrder",
		"task_1",
		"send-email",
		"a",
		"billing:invoice",
	}

	for _, name := range validNames {
		err := ValidateTopicName(name)
		assert.NoError(t, err, "Expected %q to be valid", name)
	}
}

func TestValidateTopicName_Invalid(t *testing.T) {
	invalidNames := []string{
		"",                       // empty
		"123-task",               // starts with number
		"-task",                  // starts with hyphen
		"task with spaces",       // contains spaces
		"task@email",             // contains special char
		"task/subtask",           // contains slash
		strings.Repeat("a", 300), // too long
	}

	for _, name := range invalidNames {
		err := ValidateTopicName(name)
		assert.Error(t, err, "Expected %q to be invalid", name)
	}
}

func TestValidateVariableName(t *testing.T) {
	for _, name := range []string{"payload", "_internal", "order.id", "result-v2"} {
		assert.NoError(t, ValidateVariableName(name), "Expected %q to be valid", name)
	}
	for _, name := range []string{"", "has space", "9lives", strings.Repeat("v", 300)} {
		assert.Error(t, ValidateVariableName(name), "Expected %q to be invalid", name)
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal message",
			input:    "connection refused",
			expected: "connection refused",
		},
		{
			name:     "message with newlines",
			input:    "error on\nline 2",
			expected: "error on\nline 2",
		},
		{
			name:     "message with null bytes",
			input:    "error\x00with\x00nulls",
			expected: "errorwithnulls",
		},
		{
			name:     "empty message",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeErrorMessage(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSanitizeErrorMessage_Truncation(t *testing.T) {
	result := SanitizeErrorMessage(strings.Repeat("a", 5000))

	assert.Equal(t, MaxErrorMessageLength, len(result))
	assert.True(t, strings.HasSuffix(result, "..."))
}

func TestSanitizeErrorDetails_Truncation(t *testing.T) {
	result := SanitizeErrorDetails(strings.Repeat("b", 10000))

	assert.Equal(t, MaxErrorDetailsLength, len(result))
	assert.True(t, strings.HasSuffix(result, "..."))
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{10, 10},
		{1000, 1000},
		{1001, 1000},
	}

	for _, tt := range tests {
		result := ClampConcurrency(tt.input)
		assert.Equal(t, tt.expected, result, "ClampConcurrency(%d)", tt.input)
	}
}

func TestClampLockDuration(t *testing.T) {
	assert.Equal(t, time.Second, ClampLockDuration(0))
	assert.Equal(t, time.Second, ClampLockDuration(10*time.Millisecond))
	assert.Equal(t, 30*time.Second, ClampLockDuration(30*time.Second))
}
