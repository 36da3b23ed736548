package util

import (
	"regexp"
	"strings"
)

var (
	// Matches various think/reasoning tag formats
	thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	// Some reasoning models drop the opening tag and only close the block
	danglingCloseRegex = regexp.MustCompile(`(?i)^[\s\S]*?</think(?:ing)?>`)
	// A reasoning block cut off before it was closed
	unclosedOpenRegex = regexp.MustCompile(`(?i)<think(?:ing)?>[\s\S]*$`)
)

// ContainsThinkTags checks if the response contains think/reasoning tags
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response)
}

// StripThinkTags removes reasoning blocks so only the final answer remains.
// Braces inside a reasoning block would otherwise widen the JSON span.
func StripThinkTags(response string) string {
	result := thinkTagRegex.ReplaceAllString(response, "")
	result = danglingCloseRegex.ReplaceAllString(result, "")
	result = unclosedOpenRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}
