package util

import (
	"strings"
	"sync"
	"testing"
)

func TestRenderTemplate_Basic(t *testing.T) {
	tmpl := "Explain {{.Item}} ({{.Category}}) costing {{.Cost}}."
	data := map[string]interface{}{
		"Item":     "CBC Blood Test",
		"Category": "Diagnostics",
		"Cost":     "₹450",
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "Explain CBC Blood Test (Diagnostics) costing ₹450."
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name", map[string]interface{}{"Name": "Alice"})
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name}}", map[string]interface{}{})
	if err == nil {
		t.Fatal("Expected error for missing key, got nil")
	}
}

func TestRenderTemplate_ForbiddenDirectives(t *testing.T) {
	tests := []string{
		`{{define "x"}}boom{{end}}`,
		`{{template "x"}}`,
		`{{block "x" .}}{{end}}`,
		`{{call .Fn}}`,
	}

	for _, tmpl := range tests {
		_, err := RenderTemplate(tmpl, map[string]interface{}{})
		if err == nil || !strings.Contains(err.Error(), "forbidden directive") {
			t.Errorf("RenderTemplate(%q) error = %v, want forbidden directive", tmpl, err)
		}
	}
}

func TestRenderTemplate_EmptyTemplate(t *testing.T) {
	result, err := RenderTemplate("", map[string]interface{}{"Name": "Alice"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "" {
		t.Errorf("Expected empty result, got '%s'", result)
	}
}

func TestTemplateCaching(t *testing.T) {
	ClearTemplateCache()

	tmpl := "Hello {{.Name}}"
	for _, name := range []string{"World", "Gopher"} {
		result, err := RenderTemplate(tmpl, map[string]interface{}{"Name": name})
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		if result != "Hello "+name {
			t.Errorf("got %q", result)
		}
	}

	if got := TemplateCacheLen(); got != 1 {
		t.Errorf("TemplateCacheLen() = %d, want 1", got)
	}

	if _, err := RenderTemplate("Bye {{.Name}}", map[string]interface{}{"Name": "x"}); err != nil {
		t.Fatal(err)
	}
	if got := TemplateCacheLen(); got != 2 {
		t.Errorf("TemplateCacheLen() = %d, want 2", got)
	}

	ClearTemplateCache()
	if got := TemplateCacheLen(); got != 0 {
		t.Errorf("TemplateCacheLen() after clear = %d, want 0", got)
	}
}

func TestTemplateCaching_FailuresNotCached(t *testing.T) {
	ClearTemplateCache()

	if _, err := RenderTemplate("{{.Broken", nil); err == nil {
		t.Fatal("expected parse error")
	}
	if got := TemplateCacheLen(); got != 0 {
		t.Errorf("TemplateCacheLen() = %d, want 0", got)
	}
}

func TestTemplateCaching_Concurrent(t *testing.T) {
	ClearTemplateCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := RenderTemplate("N={{.N}}", map[string]interface{}{"N": i})
			if err != nil {
				t.Errorf("render failed: %v", err)
				return
			}
			if !strings.HasPrefix(result, "N=") {
				t.Errorf("unexpected result %q", result)
			}
		}(i)
	}
	wg.Wait()
}

func TestValidateTemplate(t *testing.T) {
	if err := ValidateTemplate("{{.Item}}"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateTemplate("{{.Item"); err == nil {
		t.Error("expected error for unterminated action")
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncate me", 8, "truncate..."},
		{"रक्त परीक्षण", 4, "रक्त..."},
	}

	for _, tt := range tests {
		if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
