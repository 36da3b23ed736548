package config

import (
	"os"
	"path/filepath"
	"testing"
)

// BenchmarkLoad benchmarks config loading
func BenchmarkLoad(b *testing.B) {
	tempDir := b.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	configContent := `
[generation]
concurrency = 8
include_illustrations = true

[models.explain]
provider = "openai"
base_url = "https://api.example.com/v1"
model_name = "test-model"
temperature = 0.3
rate_limit_per_minute = 60

[models.illustrate]
provider = "gemini"
model_name = "gemini-2.0-flash"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Load(configPath); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkValidate benchmarks validation of a fully defaulted config
func BenchmarkValidate(b *testing.B) {
	cfg := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
