package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/lamim/medibill/internal/extract"
	"github.com/lamim/medibill/internal/util"
)

// Model roles
const (
	RoleExplain    = "explain"
	RoleIllustrate = "illustrate"
)

// Providers supported by the llm package
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderStatic = "static"
)

// Memo backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Generation           GenerationConfig       `toml:"generation"`
	Models               map[string]ModelConfig `toml:"models"`
	Preferences          PreferencesConfig      `toml:"preferences"`
	Database             DatabaseConfig         `toml:"database"`
	Cache                CacheConfig            `toml:"cache"`
	Server               ServerConfig           `toml:"server"`
	Storage              StorageConfig          `toml:"storage"`
	PromptTemplates      PromptTemplates        `toml:"prompt_templates"`
	DefaultDisclaimer    string                 `toml:"default_disclaimer"`     // Used when the model omits a disclaimer
	ProviderRateLimits   map[string]int         `toml:"provider_rate_limits"`   // Global rate limits per provider (requests per minute)
	ProviderBurstPercent int                    `toml:"provider_burst_percent"` // Burst capacity as percentage (1-50, default: 15)
}

// GenerationConfig holds batch run settings
type GenerationConfig struct {
	Concurrency          int    `toml:"concurrency"`
	OutputDir            string `toml:"output_dir"`            // Parent directory for session_* dirs (default: output)
	IncludeIllustrations bool   `toml:"include_illustrations"` // Also generate illustration descriptions in batch runs
	EnableCheckpointing  bool   `toml:"enable_checkpointing"`  // Enable checkpoint/resume support
	CheckpointInterval   int    `toml:"checkpoint_interval"`   // Save checkpoint every N completed items (default: 10)
	ResumeFromSession    string `toml:"resume_from_session"`   // Session directory to resume from
	ScanMode             string `toml:"scan_mode"`             // JSON span detection: outer (default) or balanced
	SanitizeJSON         bool   `toml:"sanitize_json"`         // Escape raw newlines inside JSON strings before parsing
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	Provider           string  `toml:"provider"` // openai, gemini or static
	BaseURL            string  `toml:"base_url"` // OpenAI-compatible endpoint (openai provider only)
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxBackoffSeconds  int     `toml:"max_backoff_seconds"`  // Optional: max backoff duration (default 120)
	MaxRetries         int     `toml:"max_retries"`          // Optional: max retry attempts (default 3, -1 = unlimited)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: request timeout (default 120)
	UseJSONMode        bool    `toml:"use_json_mode"`        // Ask the provider for a JSON response
	StaticResponse     string  `toml:"static_response"`      // Fixed text returned by the static provider
}

// PreferencesConfig holds the default per-request preferences
type PreferencesConfig struct {
	Language   string `toml:"language"`    // English, Hindi or Bengali
	FamilyMode *bool  `toml:"family_mode"` // Default true
}

// DatabaseConfig holds BillStore settings. The connection URL is a secret.
type DatabaseConfig struct {
	MaxOpenConns           int    `toml:"max_open_conns"`
	MaxIdleConns           int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `toml:"conn_max_lifetime_seconds"`
	AutoMigrate            bool   `toml:"auto_migrate"` // Apply migrations on startup
	SeedFile               string `toml:"seed_file"`    // YAML items used when no DATABASE_URL is set
}

// CacheConfig holds memoization settings
type CacheConfig struct {
	Backend    string `toml:"backend"` // memory or redis
	Size       int    `toml:"size"`    // Max entries for the memory backend
	TTLSeconds int    `toml:"ttl_seconds"`
	KeyPrefix  string `toml:"key_prefix"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr                string   `toml:"addr"`
	AllowedOrigins      []string `toml:"allowed_origins"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

// StorageConfig holds S3-compatible upload settings
type StorageConfig struct {
	Endpoint string `toml:"endpoint"` // host[:port], no scheme
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	UseSSL   bool   `toml:"use_ssl"`
	Prefix   string `toml:"prefix"`
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	Explanation             string `toml:"explanation"`
	Illustration            string `toml:"illustration"`
	ExplanationSystemPrompt string `toml:"explanation_system_prompt"` // Optional system prompt for explanations
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys     map[string]string
	DatabaseURL string
	RedisURL    string
	S3AccessKey string
	S3SecretKey string
}

const (
	// MaxConcurrency is the maximum allowed concurrency
	MaxConcurrency = 256
	// MaxCacheSize is the maximum number of memoized entries held in memory
	MaxCacheSize = 1 << 20
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ProviderBurstPercent == 0 {
		c.ProviderBurstPercent = 15
	}
	if c.ProviderBurstPercent < 1 || c.ProviderBurstPercent > 50 {
		return fmt.Errorf("provider_burst_percent must be between 1 and 50 (got %d)", c.ProviderBurstPercent)
	}

	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("generation.concurrency must be at least 1")
	}
	if c.Generation.Concurrency > MaxConcurrency {
		return fmt.Errorf("generation.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Generation.Concurrency)
	}
	if c.Generation.CheckpointInterval < 1 {
		c.Generation.CheckpointInterval = 10
	}
	if _, ok := extract.ParseScanMode(c.Generation.ScanMode); !ok {
		return fmt.Errorf("generation.scan_mode must be one of: outer, balanced (got %s)", c.Generation.ScanMode)
	}

	if _, ok := util.ParseLanguage(c.Preferences.Language); !ok {
		return fmt.Errorf("preferences.language must be one of: English, Hindi, Bengali (got %s)", c.Preferences.Language)
	}

	explainModel, ok := c.Models[RoleExplain]
	if !ok {
		return fmt.Errorf("models.explain is required")
	}
	if err := validateModelConfig(RoleExplain, explainModel); err != nil {
		return err
	}
	if illustrateModel, ok := c.Models[RoleIllustrate]; ok {
		if err := validateModelConfig(RoleIllustrate, illustrateModel); err != nil {
			return err
		}
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("cache.backend must be one of: memory, redis (got %s)", c.Cache.Backend)
	}
	if c.Cache.Size < 1 || c.Cache.Size > MaxCacheSize {
		return fmt.Errorf("cache.size must be between 1 and %d (got %d)", MaxCacheSize, c.Cache.Size)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) must not exceed max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.PromptTemplates.Explanation == "" {
		return fmt.Errorf("prompt_templates.explanation is required")
	}
	if c.PromptTemplates.Illustration == "" {
		return fmt.Errorf("prompt_templates.illustration is required")
	}
	if err := util.ValidateTemplate(c.PromptTemplates.Explanation); err != nil {
		return fmt.Errorf("prompt_templates.explanation: %w", err)
	}
	if err := util.ValidateTemplate(c.PromptTemplates.Illustration); err != nil {
		return fmt.Errorf("prompt_templates.illustration: %w", err)
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	switch mc.Provider {
	case ProviderOpenAI:
		if mc.BaseURL == "" {
			return fmt.Errorf("models.%s.base_url is required for provider openai", name)
		}
	case ProviderGemini, ProviderStatic:
	default:
		return fmt.Errorf("models.%s.provider must be one of: openai, gemini, static (got %s)", name, mc.Provider)
	}
	if mc.Provider != ProviderStatic && mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.MaxRetries < -1 {
		return fmt.Errorf("models.%s.max_retries must be -1 (unlimited) or greater", name)
	}
	return nil
}

// ModelFor returns the model for a role; illustrate falls back to explain
func (c *Config) ModelFor(role string) ModelConfig {
	if mc, ok := c.Models[role]; ok {
		return mc
	}
	return c.Models[RoleExplain]
}

// DefaultFamilyMode returns the configured family mode default
func (c *Config) DefaultFamilyMode() bool {
	if c.Preferences.FamilyMode == nil {
		return true
	}
	return *c.Preferences.FamilyMode
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Load generic API key (provider-agnostic)
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys[ProviderOpenAI] = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		secrets.APIKeys[ProviderGemini] = key
	}

	secrets.DatabaseURL = os.Getenv("DATABASE_URL")
	secrets.RedisURL = os.Getenv("REDIS_URL")
	secrets.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	secrets.S3SecretKey = os.Getenv("S3_SECRET_KEY")

	return secrets, nil
}

// GetAPIKey returns the API key for a model
func (s *Secrets) GetAPIKey(mc ModelConfig) string {
	switch mc.Provider {
	case ProviderGemini:
		if key := s.APIKeys[ProviderGemini]; key != "" {
			return key
		}
	case ProviderOpenAI:
		if strings.Contains(mc.BaseURL, "openai.com") {
			if key := s.APIKeys[ProviderOpenAI]; key != "" {
				return key
			}
		}
	}

	// Fall back to generic API_KEY for any provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// If no key found, return empty (could be local server without auth)
	return ""
}

// GetProviderName extracts a provider name for rate limiting
func GetProviderName(mc ModelConfig) string {
	switch {
	case mc.Provider == ProviderGemini:
		return ProviderGemini
	case mc.Provider == ProviderStatic:
		return ProviderStatic
	case strings.Contains(mc.BaseURL, "openai.com"):
		return ProviderOpenAI
	case strings.Contains(mc.BaseURL, "generativelanguage.googleapis.com"):
		return ProviderGemini
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return mc.BaseURL
}
