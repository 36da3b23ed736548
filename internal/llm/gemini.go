package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/config"
)

// Gemini generates text with the Gemini API
type Gemini struct {
	client       *genai.Client
	model        config.ModelConfig
	systemPrompt string
	pool         *api.RateLimiterPool
	policy       api.RetryPolicy
	logger       *slog.Logger
}

// GeminiOption configures a Gemini generator
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at a different endpoint
func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(cc *genai.ClientConfig) {
		cc.HTTPOptions.BaseURL = baseURL
	}
}

// NewGemini creates a Gemini generator
func NewGemini(ctx context.Context, mc config.ModelConfig, apiKey, systemPrompt string,
	pool *api.RateLimiterPool, logger *slog.Logger, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY is not set")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if mc.BaseURL != "" {
		cc.HTTPOptions.BaseURL = mc.BaseURL
	}
	if mc.HTTPTimeoutSeconds > 0 {
		timeout := time.Duration(mc.HTTPTimeoutSeconds) * time.Second
		cc.HTTPOptions.Timeout = &timeout
	}
	for _, opt := range opts {
		opt(cc)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	if pool == nil {
		pool = api.NewRateLimiterPool(0)
	}

	return &Gemini{
		client:       client,
		model:        mc,
		systemPrompt: systemPrompt,
		pool:         pool,
		policy:       api.RetryPolicyFor(mc, api.DefaultBaseRetryDelay),
		logger:       logger,
	}, nil
}

// Generate sends prompt as a single user turn and returns the first candidate's text
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.pool.Wait(ctx, config.ProviderGemini, "gemini:"+g.model.ModelName, g.model.RateLimitPerMinute); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.model.Temperature)),
		TopP:            genai.Ptr(float32(g.model.TopP)),
		MaxOutputTokens: int32(g.model.MaxOutputTokens),
	}
	if g.systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}
	if g.model.UseJSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	return api.Retry(ctx, g.logger, g.policy, g.model.ModelName, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model.ModelName, contents, cfg)
		if err != nil {
			return "", toAPIError(ctx, err)
		}
		return resp.Text(), nil
	})
}

// Name returns the model name
func (g *Gemini) Name() string {
	return g.model.ModelName
}

// toAPIError maps SDK errors onto *api.APIError so the shared retry loop applies
func toAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return &api.APIError{
			Message:    gErr.Message,
			StatusCode: gErr.Code,
			Type:       gErr.Status,
			Retryable:  api.IsStatusCodeRetryable(gErr.Code),
		}
	}

	// Anything else came from the transport
	return &api.APIError{
		Message:   err.Error(),
		Retryable: true,
	}
}
