package api

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

	"github.com/lamim/medibill/internal/config"
)

const okBody = `{
	"id": "test-123",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Test response"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient() *Client {
	client := NewClient(testLogger(), NewRateLimiterPool(0))
	client.baseRetryDelay = time.Millisecond
	return client
}

func testModel(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		Provider:           config.ProviderOpenAI,
		BaseURL:            baseURL,
		ModelName:          "test-model",
		Temperature:        0.2,
		TopP:               1.0,
		MaxOutputTokens:    100,
		RateLimitPerMinute: 6000,
		MaxRetries:         3,
	}
}

func TestChatCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header 'Bearer test-key', got '%s'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}

		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}

		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	modelCfg := testModel(server.URL + "/v1/")
	modelCfg.UseJSONMode = true

	resp, err := testClient().ChatCompletion(
		context.Background(),
		modelCfg,
		"test-key",
		[]Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "Explain MRI"}},
	)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Content() != "Test response" {
		t.Errorf("Expected content 'Test response', got '%s'", resp.Content())
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
}

func TestChatCompletion_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "Server error"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	resp, err := testClient().ChatCompletion(context.Background(), testModel(server.URL), "k", []Message{{Role: RoleUser, Content: "x"}})
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", got)
	}
	if resp.Content() != "Test response" {
		t.Errorf("content = %q", resp.Content())
	}
}

func TestChatCompletion_NonRetryable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := testClient().ChatCompletion(context.Background(), testModel(server.URL), "k", []Message{{Role: RoleUser, Content: "x"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Retryable || apiErr.Type != "invalid_request_error" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestChatCompletion_RateLimitExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	modelCfg := testModel(server.URL)
	modelCfg.MaxRetries = 1

	_, err := testClient().ChatCompletion(context.Background(), modelCfg, "k", []Message{{Role: RoleUser, Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("err = %v, want max retries exceeded", err)
	}
	if !IsRateLimitError(err) {
		t.Errorf("expected wrapped 429, got %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestChatCompletion_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient()
	client.baseRetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.ChatCompletion(ctx, testModel(server.URL), "k", []Message{{Role: RoleUser, Content: "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestChatCompletion_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	resp, err := testClient().ChatCompletion(context.Background(), testModel(server.URL), "", []Message{{Role: RoleUser, Content: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content() != "" {
		t.Errorf("Content() = %q, want empty", resp.Content())
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt     int
		rateLimited bool
		want        time.Duration
	}{
		{1, false, time.Second},
		{2, false, 2 * time.Second},
		{3, false, 4 * time.Second},
		{1, true, 3 * time.Second},
		{2, true, 9 * time.Second},
		{3, true, 10 * time.Second}, // capped
	}

	for _, tt := range tests {
		got := policy.Delay(tt.attempt, tt.rateLimited)
		low := time.Duration(float64(tt.want) * 0.9)
		high := time.Duration(float64(tt.want) * 1.1)
		if got < low || got > high {
			t.Errorf("Delay(%d, %v) = %v, want within 10%% of %v", tt.attempt, tt.rateLimited, got, tt.want)
		}
	}
}

func TestRetryPolicy_DelayLargeAttempts(t *testing.T) {
	policy := RetryPolicy{MaxRetries: -1, BaseDelay: 2 * time.Second, MaxDelay: 120 * time.Second}

	for _, attempt := range []int{21, 33, 34, 40, 64, 70, 1000} {
		for _, rateLimited := range []bool{false, true} {
			got := policy.Delay(attempt, rateLimited)
			if got < 108*time.Second || got > 132*time.Second {
				t.Errorf("Delay(%d, %v) = %v, want about the 120s cap", attempt, rateLimited, got)
			}
		}
	}

	uncapped := RetryPolicy{MaxRetries: -1, BaseDelay: time.Second}
	if got := uncapped.Delay(100, true); got <= 0 {
		t.Errorf("uncapped Delay(100, true) = %v, want positive", got)
	}
}

func TestRetry_UnlimitedStopsOnContext(t *testing.T) {
	policy := RetryPolicy{MaxRetries: -1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var calls int
	_, err := Retry(ctx, testLogger(), policy, "m", func(context.Context) (string, error) {
		calls++
		return "", &APIError{StatusCode: http.StatusServiceUnavailable, Retryable: true}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if calls < 2 {
		t.Errorf("calls = %d, expected several attempts", calls)
	}
}

func TestRateLimiterPool(t *testing.T) {
	pool := NewRateLimiterPool(20)

	first := pool.GetOrCreate("model-a", 60)
	if first.Burst() != 12 {
		t.Errorf("Burst() = %d, want 12", first.Burst())
	}
	if again := pool.GetOrCreate("model-a", 120); again != first {
		t.Error("expected the existing limiter to be reused")
	}
	if other := pool.GetOrCreate("model-b", 5); other == first || other.Burst() != 1 {
		t.Errorf("model-b limiter = %v burst %d", other, other.Burst())
	}

	if err := pool.Wait(context.Background(), "openai", "model-a", 60); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestRateLimiterPoolProviderLimits(t *testing.T) {
	pool := NewRateLimiterPool(0)
	pool.SetProviderRateLimits(map[string]int{"gemini": 60, "openai": 0})

	if _, ok := pool.providerLimiters["openai"]; ok {
		t.Error("zero limit should be ignored")
	}
	limiter, ok := pool.providerLimiters["gemini"]
	if !ok {
		t.Fatal("gemini provider limiter missing")
	}
	if limiter.Burst() != 9 {
		t.Errorf("provider burst = %d, want 9", limiter.Burst())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Wait(ctx, "gemini", "gemini:m", 60); err == nil {
		t.Error("Wait() should fail on a canceled context")
	}
}
