package explainer

import (
	"context"
	"errors"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/extract"
)

// Failure kinds that are not extraction kinds
const (
	FailureTransport            = "transport"
	FailureRateLimited          = "rate_limited"
	FailureTimeout              = "timeout"
	FailureCanceled             = "canceled"
	FailurePrompt               = "prompt"
	FailureUnsupportedLanguage  = "unsupported_language"
	FailureUnusableIllustration = "unusable_illustration"
)

// FailureKind maps an Explain or Illustrate error to a stable label for logs,
// result files and API responses. It returns "" for a nil error.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	if kind, ok := extract.KindOf(err); ok {
		return string(kind)
	}

	switch {
	case errors.Is(err, ErrUnusableIllustration):
		return FailureUnusableIllustration
	case errors.Is(err, ErrPrompt):
		return FailurePrompt
	case errors.Is(err, ErrUnsupportedLanguage):
		return FailureUnsupportedLanguage
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case api.IsRateLimitError(err):
		return FailureRateLimited
	}
	return FailureTransport
}

// IsExtractionFailure reports whether the model answered but the answer was unusable
func IsExtractionFailure(err error) bool {
	_, ok := extract.KindOf(err)
	return ok || errors.Is(err, ErrUnusableIllustration)
}
