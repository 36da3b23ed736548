package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func geminiModel() config.ModelConfig {
	return config.ModelConfig{
		Provider:           config.ProviderGemini,
		ModelName:          "gemini-2.0-flash",
		Temperature:        0.4,
		TopP:               1,
		MaxOutputTokens:    256,
		RateLimitPerMinute: 6000,
		MaxRetries:         2,
	}
}

func TestGemini_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if _, ok := body["systemInstruction"]; !ok {
			t.Error("expected systemInstruction in request")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"explanation\":\"x\"}"}]}}]}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), geminiModel(), "test-key", "be calm", nil, testLogger(), WithGeminiBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	got, err := g.Generate(context.Background(), "Explain ICU charges")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `{"explanation":"x"}` {
		t.Errorf("Generate() = %q", got)
	}
	if g.Name() != "gemini-2.0-flash" {
		t.Errorf("Name() = %q", g.Name())
	}
}

func TestGemini_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), geminiModel(), "k", "", nil, testLogger(), WithGeminiBaseURL(server.URL))
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Generate(context.Background(), "x")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
}

func TestGemini_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), geminiModel(), "k", "", nil, testLogger(), WithGeminiBaseURL(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	g.policy.BaseDelay = time.Millisecond

	_, err = g.Generate(context.Background(), "x")

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Type != "UNAVAILABLE" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestGemini_BadRequestNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), geminiModel(), "k", "", nil, testLogger(), WithGeminiBaseURL(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	g.policy.BaseDelay = time.Millisecond

	if _, err := g.Generate(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), geminiModel(), "", "", nil, testLogger()); err == nil {
		t.Error("expected error without API key")
	}
}

func TestOpenAI_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != api.RoleSystem || req.Messages[1].Content != "prompt" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer server.Close()

	mc := config.ModelConfig{
		Provider:           config.ProviderOpenAI,
		BaseURL:            server.URL,
		ModelName:          "gpt-test",
		RateLimitPerMinute: 6000,
		MaxRetries:         1,
	}
	gen := NewOpenAI(api.NewClient(testLogger(), nil), mc, "key", "system")

	got, err := gen.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "hello" || gen.Name() != "gpt-test" {
		t.Errorf("Generate() = %q, Name() = %q", got, gen.Name())
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic("fixed")

	got, err := s.Generate(context.Background(), "anything")
	if err != nil || got != "fixed" {
		t.Fatalf("Generate() = %q, %v", got, err)
	}
	if s.Calls() != 1 {
		t.Errorf("Calls() = %d", s.Calls())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Generate(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() on canceled ctx = %v", err)
	}
}

func TestNew(t *testing.T) {
	secrets := &config.Secrets{APIKeys: map[string]string{config.ProviderGemini: "g"}}

	tests := []struct {
		name     string
		mc       config.ModelConfig
		wantType string
		wantErr  bool
	}{
		{"static", config.ModelConfig{Provider: config.ProviderStatic, StaticResponse: "x"}, "*llm.Static", false},
		{"openai", config.ModelConfig{Provider: config.ProviderOpenAI, BaseURL: "http://localhost:1", ModelName: "m"}, "*llm.OpenAI", false},
		{"gemini", geminiModel(), "*llm.Gemini", false},
		{"unknown", config.ModelConfig{Provider: "bedrock"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(context.Background(), tt.mc, secrets, "", nil, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := typeName(gen); got != tt.wantType {
				t.Errorf("New() type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func typeName(g Generator) string {
	switch g.(type) {
	case *Static:
		return "*llm.Static"
	case *OpenAI:
		return "*llm.OpenAI"
	case *Gemini:
		return "*llm.Gemini"
	default:
		return "unknown"
	}
}
