// Package validate screens user input before it reaches the model and
// scrubs outbound error text so internals never leak to chat responses.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/haasonsaas/steward/pkg/models"
)

// DefaultMaxMessageLen is the message length cap applied when no explicit
// limit is configured.
const DefaultMaxMessageLen = 5000

// maxConversationID bounds user-supplied conversation references. IDs are
// int64 in storage but anything past int32 range is never a real row.
const maxConversationID = 1<<31 - 1

// injectionPatterns are heuristic checks for instruction-override attempts.
// Input is NFKC-normalized first, so fullwidth and compatibility spellings
// fold into the forms these match.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|above|prior)\s+(?:instructions|prompts?|rules?)`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)forget\s+(?:everything|all|your)`),
	regexp.MustCompile(`(?i)disregard\s+(?:previous|all|your)`),
	regexp.MustCompile(`(?i)override\s+(?:previous|all|your)`),
}

var (
	windowsPathPattern = regexp.MustCompile(`[A-Za-z]:[\\/]\S*`)
	unixPathPattern    = regexp.MustCompile(`/(?:[\w.+-]+/)+[\w.+-]*`)
	ipPattern          = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Message validates and cleans a chat message using the default length cap.
func Message(raw string) (string, error) {
	return MessageWithMax(raw, DefaultMaxMessageLen)
}

// MessageWithMax validates and cleans a chat message. The returned string is
// NFKC-normalized with control characters removed (newline and tab survive)
// and surrounding whitespace trimmed. Rejections are KindValidationFailed
// with a user-facing message; the raw input is never forwarded once any
// check fails.
func MessageWithMax(raw string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}

	clean := norm.NFKC.String(raw)
	clean = stripControl(clean)
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return "", models.NewDomainError(models.KindValidationFailed,
			"Message cannot be empty.")
	}

	length := utf8.RuneCountInString(clean)
	if length > maxLen {
		return "", models.NewDomainError(models.KindValidationFailed,
			fmt.Sprintf("Message too long. Maximum %d characters allowed.", maxLen))
	}

	special := 0
	for _, r := range clean {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if special*2 > length {
		return "", models.NewDomainError(models.KindValidationFailed,
			"Message contains too many special characters. Please use normal text.")
	}

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(clean) {
			return "", models.NewDomainError(models.KindValidationFailed,
				"Message contains suspicious patterns. Please rephrase your request.")
		}
	}

	return clean, nil
}

// ConversationID checks a user-supplied conversation reference.
func ConversationID(id int64) error {
	if id < 1 {
		return models.NewDomainError(models.KindValidationFailed,
			"Conversation ID must be positive.")
	}
	if id > maxConversationID {
		return models.NewDomainError(models.KindValidationFailed,
			"Conversation ID is too large.")
	}
	return nil
}

// SanitizeError makes an error message safe to show users: stack traces
// collapse to a generic message, filesystem paths and IP addresses are
// masked, and the result is capped at 200 characters.
func SanitizeError(message string) string {
	if strings.Contains(message, "goroutine ") ||
		strings.Contains(message, ".go:") ||
		strings.Contains(message, "runtime error") {
		return "An internal error occurred. Please try again."
	}

	sanitized := windowsPathPattern.ReplaceAllString(message, "[path]")
	sanitized = unixPathPattern.ReplaceAllString(sanitized, "[path]")
	sanitized = ipPattern.ReplaceAllString(sanitized, "[ip]")

	if runes := []rune(sanitized); len(runes) > 200 {
		sanitized = string(runes[:197]) + "..."
	}
	return sanitized
}

// stripControl removes control characters, keeping newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
