package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultBurstPercent is the burst capacity used when none is configured
const DefaultBurstPercent = 15

// RateLimiterPool manages per-model rate limiters plus optional
// provider-wide limiters shared by every model of a provider
type RateLimiterPool struct {
	limiters         map[string]*rate.Limiter
	rates            map[string]int // Track original rates for consistency check
	providerLimiters map[string]*rate.Limiter
	burstPercent     int
	mu               sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool.
// burstPercent <= 0 selects DefaultBurstPercent.
func NewRateLimiterPool(burstPercent int) *RateLimiterPool {
	if burstPercent <= 0 {
		burstPercent = DefaultBurstPercent
	}
	return &RateLimiterPool{
		limiters:         make(map[string]*rate.Limiter),
		rates:            make(map[string]int),
		providerLimiters: make(map[string]*rate.Limiter),
		burstPercent:     burstPercent,
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one
// If a limiter exists with a different rate, it logs a warning and keeps the existing one
func (p *RateLimiterPool) GetOrCreate(modelID string, requestsPerMinute int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[modelID]; exists {
		if existingRate, ok := p.rates[modelID]; ok && existingRate != requestsPerMinute {
			slog.Warn("Rate limiter already exists with different rate, using existing rate",
				"model_id", modelID,
				"existing_rpm", existingRate,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}

	limiter := p.newLimiter(requestsPerMinute)
	p.limiters[modelID] = limiter
	p.rates[modelID] = requestsPerMinute

	slog.Debug("Created rate limiter",
		"model_id", modelID,
		"rpm", requestsPerMinute,
		"burst", limiter.Burst())

	return limiter
}

// SetProviderRateLimits installs provider-wide limits in requests per minute.
// Entries below 1 are ignored.
func (p *RateLimiterPool) SetProviderRateLimits(limits map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for provider, rpm := range limits {
		if rpm < 1 {
			continue
		}
		p.providerLimiters[provider] = p.newLimiter(rpm)
	}
}

func (p *RateLimiterPool) newLimiter(requestsPerMinute int) *rate.Limiter {
	rps := float64(requestsPerMinute) / 60.0
	burst := max(1, requestsPerMinute*p.burstPercent/100)
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until both the provider limiter (if any) and the model limiter allow a request
func (p *RateLimiterPool) Wait(ctx context.Context, provider, modelID string, requestsPerMinute int) error {
	p.mu.Lock()
	providerLimiter := p.providerLimiters[provider]
	p.mu.Unlock()

	if providerLimiter != nil {
		if err := providerLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.GetOrCreate(modelID, requestsPerMinute).Wait(ctx)
}
