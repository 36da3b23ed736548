package extract

import "strings"

const fence = "```"

// ScanMode selects how the JSON object is located inside the response
type ScanMode int

const (
	// ScanOuterSpan takes everything from the first '{' to the last '}'.
	// It assumes a single object per response; braces inside string values
	// or a second object in the same response will produce a bad span.
	ScanOuterSpan ScanMode = iota
	// ScanBalanced takes the first '{' and its matching '}', skipping
	// braces inside string literals.
	ScanBalanced
)

func (m ScanMode) String() string {
	switch m {
	case ScanOuterSpan:
		return "outer"
	case ScanBalanced:
		return "balanced"
	default:
		return "unknown"
	}
}

// ParseScanMode accepts "outer" (or "") and "balanced"
func ParseScanMode(s string) (ScanMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "outer":
		return ScanOuterSpan, true
	case "balanced":
		return ScanBalanced, true
	default:
		return ScanOuterSpan, false
	}
}

// stripFence removes a leading ``` fence line and the last closing fence.
// Text after the closing fence is dropped with it.
func stripFence(s string) string {
	if !strings.HasPrefix(s, fence) {
		return s
	}

	body := s[len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if idx := strings.LastIndex(body, fence); idx >= 0 {
		body = body[:idx]
	}

	return strings.TrimSpace(body)
}

// locate returns the inclusive [start, end] byte range of the JSON object
func locate(s string, mode ScanMode) (int, int, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return 0, 0, false
	}

	var end int
	if mode == ScanBalanced {
		end = findMatchingBracket(s, start, '{', '}')
	} else {
		end = strings.LastIndexByte(s, '}')
	}

	if end == -1 || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// findMatchingBracket finds the matching closing bracket for an opening bracket
// using proper bracket matching that handles escaped quotes and strings
// Returns -1 if no matching bracket is found
func findMatchingBracket(s string, startPos int, openChar, closeChar byte) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			continue
		}

		// Only count brackets outside of strings
		if !inString {
			if ch == openChar {
				count++
			} else if ch == closeChar {
				count--
				if count == 0 {
					return i
				}
			}
		}
	}

	return -1
}

// sanitizeJSON escapes literal newlines inside string values,
// which some models emit in long explanations
func sanitizeJSON(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}

		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}

		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}

		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			// Skip \r if followed by \n
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}
