package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// DefaultMaxBackoff caps a single backoff sleep
	DefaultMaxBackoff = 120 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
)

// RetryPolicy controls how failed requests are retried.
// MaxRetries < 0 retries until the context is done.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used when a model sets no overrides
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseRetryDelay,
		MaxDelay:   DefaultMaxBackoff,
	}
}

// Delay returns the sleep before the given retry attempt (1-based).
// Rate limit errors back off as 3^n, everything else as 2^(n-1), with ±10% jitter.
func (p RetryPolicy) Delay(attempt int, rateLimited bool) time.Duration {
	// Computed in float so large attempts cannot overflow int64
	scaled := math.Pow(2, float64(attempt-1)) * float64(p.BaseDelay)
	if rateLimited {
		scaled = math.Pow(RateLimitBackoffMultiplier, float64(attempt)) * float64(p.BaseDelay)
	}
	limit := float64(math.MaxInt64 / 2)
	if p.MaxDelay > 0 {
		limit = float64(p.MaxDelay)
	}
	backoff := time.Duration(math.Min(scaled, limit))

	jitter := time.Duration(float64(backoff) * 0.1 * (2*rand.Float64() - 1))
	return backoff + jitter
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Only *APIError values with Retryable set are retried.
func Retry[T any](ctx context.Context, logger *slog.Logger, policy RetryPolicy, model string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; policy.MaxRetries < 0 || attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			sleepDuration := policy.Delay(attempt, IsRateLimitError(lastErr))

			logger.Warn("Retrying API request",
				"attempt", attempt,
				"max_retries", policy.MaxRetries,
				"backoff", sleepDuration,
				"model", model,
				"is_rate_limit", IsRateLimitError(lastErr),
				"error", lastErr)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// IsRetryable reports whether err is an *APIError marked retryable
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// IsRateLimitError reports whether err is a 429 *APIError
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsStatusCodeRetryable reports whether a response status is worth retrying
func IsStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
