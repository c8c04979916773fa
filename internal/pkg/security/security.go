// Package security provides sanitization and validation for untrusted
// message text and for values that end up in logs.
package security

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageSize is the largest message accepted for classification.
const MaxMessageSize = 64 * 1024

// SanitizeForLog sanitizes a string for safe logging.
// It prevents log injection by:
// - Replacing newlines with escaped versions
// - Replacing carriage returns
// - Removing other control characters
// - Truncating to a maximum length
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			if !unicode.IsControl(r) || r == ' ' {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}

// SanitizeMessage replaces control characters with spaces and trims the
// result. Message text is otherwise left unchanged.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, msg)
	return strings.TrimSpace(sanitized)
}

// ValidateMessage checks that a message is valid UTF-8 and at most
// maxSize bytes.
func ValidateMessage(msg string, maxSize int) error {
	if len(msg) > maxSize {
		return &ContentError{
			Reason: "message exceeds maximum size",
			Size:   len(msg),
			Max:    maxSize,
		}
	}

	if !utf8.ValidString(msg) {
		return &ContentError{Reason: "message is not valid UTF-8"}
	}

	return nil
}

// ContentError represents a content validation error.
type ContentError struct {
	Reason string
	Size   int
	Max    int
}

func (e *ContentError) Error() string {
	if e.Size > 0 && e.Max > 0 {
		return fmt.Sprintf("%s (size: %s, max: %s)", e.Reason, formatSize(e.Size), formatSize(e.Max))
	}
	return e.Reason
}

// formatSize formats a byte size as human-readable.
func formatSize(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f%s", float64(bytes)/float64(div), units[exp])
}

// RedactURL hides the password of a connection URL so it can be logged.
// Unparseable input is replaced entirely.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	return u.Redacted()
}
