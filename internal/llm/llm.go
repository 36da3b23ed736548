// Package llm adapts hosted text-generation models to a single Generator interface.
//
// Generators return the model's raw text. An empty string means the model
// produced no usable text; transport failures are returned as errors.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/config"
)

// Generator produces free text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// New builds the generator for a model config
func New(ctx context.Context, mc config.ModelConfig, secrets *config.Secrets, systemPrompt string,
	pool *api.RateLimiterPool, logger *slog.Logger) (Generator, error) {
	apiKey := ""
	if secrets != nil {
		apiKey = secrets.GetAPIKey(mc)
	}

	switch mc.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(api.NewClient(logger, pool), mc, apiKey, systemPrompt), nil
	case config.ProviderGemini:
		return NewGemini(ctx, mc, apiKey, systemPrompt, pool, logger)
	case config.ProviderStatic:
		return NewStatic(mc.StaticResponse), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}
