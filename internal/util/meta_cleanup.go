package util

import "strings"

// leading lines that introduce the answer instead of being part of it
var leadInPrefixes = []string{
	"sure",
	"certainly",
	"of course",
	"here is",
	"here's",
	"okay",
}

// trailing phrases that close the conversation
var signOffPhrases = []string{
	"hope this helps",
	"hope that helps",
	"let me know if",
	"feel free to ask",
	"i hope this",
}

// CleanMetaFromLLMResponse trims conversational chatter around a free-text
// answer: a leading "Sure! Here's..." line and a trailing sign-off.
// If cleaning would leave nothing, the trimmed original is returned.
func CleanMetaFromLLMResponse(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return trimmed
	}

	result := trimmed
	if nl := strings.IndexByte(result, '\n'); nl > 0 {
		first := strings.ToLower(strings.TrimSpace(result[:nl]))
		for _, prefix := range leadInPrefixes {
			if strings.HasPrefix(first, prefix) && strings.HasSuffix(first, ":") {
				result = strings.TrimSpace(result[nl+1:])
				break
			}
		}
	}

	lower := strings.ToLower(result)
	cutIndex := len(result)
	for _, phrase := range signOffPhrases {
		if idx := strings.Index(lower, phrase); idx > 0 && idx < cutIndex {
			cutIndex = idx
		}
	}
	if cutIndex < len(result) {
		result = strings.TrimSpace(result[:cutIndex])
	}

	if result == "" {
		return trimmed
	}
	return result
}
