package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB

	// MaxDisclaimerLength is the maximum allowed length for the default disclaimer
	MaxDisclaimerLength = 1000

	// MaxKeyPrefixLength bounds cache key and object key prefixes
	MaxKeyPrefixLength = 128
)

// S3 bucket naming rules: 3-63 chars, lowercase letters, digits, dots, hyphens
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidateInputs performs additional security validation on user-controllable fields.
func (c *Config) ValidateInputs() error {
	for name, mc := range c.Models {
		if err := validateModelName(mc.ModelName, name); err != nil {
			return err
		}

		if mc.Provider == ProviderOpenAI {
			if err := validateBaseURL(mc.BaseURL, name); err != nil {
				return err
			}
		}
	}

	if err := c.validateTemplateSizes(); err != nil {
		return err
	}

	if len(c.DefaultDisclaimer) > MaxDisclaimerLength {
		return fmt.Errorf("default_disclaimer exceeds maximum length of %d characters (got %d)",
			MaxDisclaimerLength, len(c.DefaultDisclaimer))
	}
	if containsControlChars(c.DefaultDisclaimer) {
		return fmt.Errorf("default_disclaimer contains invalid control characters")
	}

	if err := validateKeyPrefix("cache.key_prefix", c.Cache.KeyPrefix); err != nil {
		return err
	}

	for _, origin := range c.Server.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	if c.Storage.Bucket != "" || c.Storage.Endpoint != "" {
		if err := c.validateStorage(); err != nil {
			return err
		}
	}

	return nil
}

// validateModelName checks model name for security issues
func validateModelName(modelName, configKey string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("model '%s' name exceeds maximum length of %d (got %d)",
			configKey, MaxModelNameLength, len(modelName))
	}

	if containsControlChars(modelName) {
		return fmt.Errorf("model '%s' name contains invalid control characters", configKey)
	}

	return nil
}

// validateBaseURL checks that the base URL is properly formatted and safe
func validateBaseURL(baseURL, configKey string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("model '%s' has invalid base_url: %w", configKey, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("model '%s' base_url must use http or https scheme (got %s)",
			configKey, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("model '%s' base_url must have a host", configKey)
	}

	return nil
}

// validateOrigin accepts "*" or an http(s) origin without a path
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.allowed_origins entry %q must be \"*\" or an http(s) origin", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("server.allowed_origins entry %q must not include a path", origin)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required when storage.bucket is set")
	}
	if strings.Contains(c.Storage.Endpoint, "://") {
		return fmt.Errorf("storage.endpoint must be host[:port] without a scheme (got %s)", c.Storage.Endpoint)
	}
	if !bucketNameRegex.MatchString(c.Storage.Bucket) {
		return fmt.Errorf("storage.bucket %q is not a valid bucket name", c.Storage.Bucket)
	}
	return validateKeyPrefix("storage.prefix", c.Storage.Prefix)
}

func validateKeyPrefix(field, prefix string) error {
	if len(prefix) > MaxKeyPrefixLength {
		return fmt.Errorf("%s exceeds maximum length of %d (got %d)", field, MaxKeyPrefixLength, len(prefix))
	}
	for _, r := range prefix {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%s must not contain whitespace or control characters", field)
		}
	}
	return nil
}

// validateTemplateSizes checks that templates are within reasonable size limits
func (c *Config) validateTemplateSizes() error {
	templates := []struct {
		name  string
		value string
	}{
		{"explanation", c.PromptTemplates.Explanation},
		{"illustration", c.PromptTemplates.Illustration},
		{"explanation_system_prompt", c.PromptTemplates.ExplanationSystemPrompt},
	}

	for _, tmpl := range templates {
		if len(tmpl.value) > MaxTemplateSize {
			return fmt.Errorf("template '%s' exceeds maximum size of %d bytes (got %d)",
				tmpl.name, MaxTemplateSize, len(tmpl.value))
		}
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
