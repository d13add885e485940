// Package security provides validation, sanitization, and limits for the tasks package.
package security

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// Security limits and configuration
const (
	// MaxTopicNameLength is the maximum length for topic names
	MaxTopicNameLength = 255

	// MaxVariableNameLength is the maximum length for variable names
	MaxVariableNameLength = 255

	// MaxConcurrency is the hard limit for concurrently executing tasks
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for failure messages sent to the broker
	MaxErrorMessageLength = 666

	// MaxErrorDetailsLength is the maximum length for failure details sent to the broker
	MaxErrorDetailsLength = 4096

	// MinLockDuration is the shortest lock a subscription may request
	MinLockDuration = time.Second
)

// validTopicName matches alphanumeric, hyphens, underscores, dots and colons
var validTopicName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.:]*$`)

// validVariableName matches identifiers that may also contain hyphens and dots
var validVariableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-\.]*$`)

// ValidateTopicName validates a topic name
func ValidateTopicName(name string) error {
	if name == "" {
		return core.ErrInvalidTopicName
	}
	if len(name) > MaxTopicNameLength {
		return core.ErrTopicNameTooLong
	}
	if !validTopicName.MatchString(name) {
		return core.ErrInvalidTopicName
	}
	return nil
}

// ValidateVariableName validates an argument or result variable name
func ValidateVariableName(name string) error {
	if name == "" || len(name) > MaxVariableNameLength {
		return core.ErrInvalidVariableName
	}
	if !validVariableName.MatchString(name) {
		return core.ErrInvalidVariableName
	}
	return nil
}

// SanitizeErrorMessage strips control characters and truncates to the
// broker's failure message limit.
func SanitizeErrorMessage(msg string) string {
	return sanitize(msg, MaxErrorMessageLength)
}

// SanitizeErrorDetails strips control characters and truncates failure details.
func SanitizeErrorDetails(details string) string {
	return sanitize(details, MaxErrorDetailsLength)
}

func sanitize(msg string, limit int) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > limit {
		runes := []rune(result)
		result = string(runes[:limit-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ClampLockDuration raises lock durations below MinLockDuration.
func ClampLockDuration(d time.Duration) time.Duration {
	if d < MinLockDuration {
		return MinLockDuration
	}
	return d
}
