package explainer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnusableIllustration is returned when the illustration text is empty or a refusal
var ErrUnusableIllustration = errors.New("unusable illustration description")

// minIllustrationRunes is the shortest description worth showing
const minIllustrationRunes = 20

// Common refusal patterns from model responses
var refusalPatterns = []string{
	"i'm sorry, but i can't help with that",
	"i cannot help with that",
	"i can't assist with that",
	"i'm unable to help with that",
	"i apologize, but i cannot",
	"i'm not able to assist",
	"i cannot provide",
	"i cannot generate",
	"i'm sorry, i cannot",
	"i'm sorry, but i cannot",
	"as an ai",
}

// unusableIllustration reports whether text should not be shown, and why
func unusableIllustration(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "empty response", true
	}
	if n := utf8.RuneCountInString(trimmed); n < minIllustrationRunes {
		return fmt.Sprintf("response too short (%d chars)", n), true
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range refusalPatterns {
		if strings.Contains(lower, pattern) {
			return "contains refusal pattern: " + pattern, true
		}
	}
	return "", false
}
