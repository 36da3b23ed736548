package llm

import (
	"context"
	"sync/atomic"
)

// Static returns a fixed response. Used for offline runs and tests.
type Static struct {
	response string
	calls    atomic.Int64
}

// NewStatic creates a generator that always returns response
func NewStatic(response string) *Static {
	return &Static{response: response}
}

// Generate returns the fixed response unless ctx is done
func (s *Static) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.calls.Add(1)
	return s.response, nil
}

// Name returns "static"
func (s *Static) Name() string {
	return "static"
}

// Calls returns how many times Generate succeeded
func (s *Static) Calls() int64 {
	return s.calls.Load()
}
