package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Parsed templates are reused across renders; prompts are rendered once per item
// and language, so a small cache covers every configured template.
const templateCacheSize = 64

var templateCache = mustTemplateCache()

func mustTemplateCache() *lru.Cache[string, *template.Template] {
	c, err := lru.New[string, *template.Template](templateCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// RenderTemplate renders a template string with the given data
// Includes validation to prevent template injection attacks
func RenderTemplate(tmpl string, data map[string]interface{}) (string, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// ValidateTemplate parses tmpl without executing it
func ValidateTemplate(tmpl string) error {
	_, err := parseTemplate(tmpl)
	return err
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if t, ok := templateCache.Get(tmpl); ok {
		return t, nil
	}

	for _, directive := range forbiddenDirectives {
		if strings.Contains(tmpl, directive) {
			return nil, fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	t, err := template.New("prompt").
		Option("missingkey=error"). // Fail on missing keys to prevent silent errors
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	templateCache.Add(tmpl, t)
	return t, nil
}

// ClearTemplateCache drops all parsed templates
func ClearTemplateCache() {
	templateCache.Purge()
}

// TemplateCacheLen reports how many parsed templates are cached
func TemplateCacheLen() int {
	return templateCache.Len()
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
