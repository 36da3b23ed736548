package llm

import (
	"context"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/config"
)

// OpenAI generates text through an OpenAI-compatible chat completions endpoint
type OpenAI struct {
	client       *api.Client
	model        config.ModelConfig
	apiKey       string
	systemPrompt string
}

// NewOpenAI creates an OpenAI-compatible generator
func NewOpenAI(client *api.Client, model config.ModelConfig, apiKey, systemPrompt string) *OpenAI {
	return &OpenAI{
		client:       client,
		model:        model,
		apiKey:       apiKey,
		systemPrompt: systemPrompt,
	}
}

// Generate sends prompt as a single user message
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]api.Message, 0, 2)
	if o.systemPrompt != "" {
		messages = append(messages, api.Message{Role: api.RoleSystem, Content: o.systemPrompt})
	}
	messages = append(messages, api.Message{Role: api.RoleUser, Content: prompt})

	resp, err := o.client.ChatCompletion(ctx, o.model, o.apiKey, messages)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

// Name returns the model name
func (o *OpenAI) Name() string {
	return o.model.ModelName
}
