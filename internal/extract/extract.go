// Package extract turns free-text model output into a validated BillingExplanation.
//
// Models are asked for strict JSON but routinely wrap it in markdown fences or
// surround it with prose. Extract tolerates both and reports every other
// problem as a typed *Error so callers can log the kind and show a fallback.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/lamim/medibill/pkg/models"
)

// Field names expected in the model's JSON object
const (
	FieldExplanation     = "explanation"
	FieldInsuranceStatus = "insurance_status"
	FieldInsuranceNote   = "insurance_note"
	FieldDisclaimer      = "disclaimer"
)

var requiredFields = []string{FieldExplanation, FieldInsuranceStatus}

// Extractor holds extraction options. The zero value is not usable; call New.
// An Extractor has no mutable state and is safe for concurrent use.
type Extractor struct {
	mode     ScanMode
	sanitize bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithScanMode selects how the JSON span is located
func WithScanMode(mode ScanMode) Option {
	return func(e *Extractor) {
		e.mode = mode
	}
}

// WithSanitize escapes raw newlines inside JSON strings before parsing
func WithSanitize(enabled bool) Option {
	return func(e *Extractor) {
		e.sanitize = enabled
	}
}

// New creates an Extractor; with no options it uses the outer-span scan
func New(opts ...Option) *Extractor {
	e := &Extractor{mode: ScanOuterSpan}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract parses raw with the default options
func Extract(raw string) (models.BillingExplanation, error) {
	return defaultExtractor.Extract(raw)
}

// Mode returns the configured scan mode
func (e *Extractor) Mode() ScanMode {
	return e.mode
}

// Extract converts raw model text into a BillingExplanation.
// On failure the returned record is the zero value and the error is an *Error.
func (e *Extractor) Extract(raw string) (models.BillingExplanation, error) {
	var zero models.BillingExplanation

	text := strings.TrimSpace(raw)
	if text == "" {
		return zero, &Error{Kind: KindEmptyResponse}
	}

	text = stripFence(text)

	start, end, ok := locate(text, e.mode)
	if !ok {
		return zero, &Error{Kind: KindNoJSONFound}
	}

	span := text[start : end+1]
	if e.sanitize {
		span = sanitizeJSON(span)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return zero, &Error{Kind: KindMalformedJSON, Snippet: span, Err: err}
	}

	for _, field := range requiredFields {
		if v, ok := obj[field]; !ok || v == nil {
			return zero, &Error{Kind: KindMissingField, Field: field}
		}
	}

	rawStatus, isString := obj[FieldInsuranceStatus].(string)
	if !isString {
		return zero, &Error{Kind: KindInvalidEnumValue, Value: jsonText(obj[FieldInsuranceStatus])}
	}
	status, ok := models.ParseInsuranceStatus(rawStatus)
	if !ok {
		return zero, &Error{Kind: KindInvalidEnumValue, Value: rawStatus}
	}

	if err := recordSchema.Validate(obj); err != nil {
		return zero, &Error{Kind: KindInvalidField, Field: schemaField(err), Err: err}
	}

	return models.BillingExplanation{
		Explanation:     obj[FieldExplanation].(string),
		InsuranceStatus: status,
		InsuranceNote:   optionalString(obj, FieldInsuranceNote),
		Disclaimer:      optionalString(obj, FieldDisclaimer),
	}, nil
}

func optionalString(obj map[string]any, field string) string {
	s, _ := obj[field].(string)
	return s
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
