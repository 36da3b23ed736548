package extract

import (
	"errors"
	"fmt"
)

// Kind classifies why a response could not be turned into a record
type Kind string

const (
	KindEmptyResponse    Kind = "empty_response"
	KindNoJSONFound      Kind = "no_json_found"
	KindMalformedJSON    Kind = "malformed_json"
	KindMissingField     Kind = "missing_field"
	KindInvalidEnumValue Kind = "invalid_enum_value"
	KindInvalidField     Kind = "invalid_field"
)

// Error is the typed failure returned by Extract.
// Field is set for missing and invalid fields, Value for an unrecognized
// insurance status, Snippet for malformed JSON (the span handed to the parser).
type Error struct {
	Kind    Kind
	Field   string
	Value   string
	Snippet string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrEmptyResponse    = &Error{Kind: KindEmptyResponse}
	ErrNoJSONFound      = &Error{Kind: KindNoJSONFound}
	ErrMalformedJSON    = &Error{Kind: KindMalformedJSON}
	ErrMissingField     = &Error{Kind: KindMissingField}
	ErrInvalidEnumValue = &Error{Kind: KindInvalidEnumValue}
	ErrInvalidField     = &Error{Kind: KindInvalidField}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindEmptyResponse:
		return "extract: empty response"
	case KindNoJSONFound:
		return "extract: no JSON object found in response"
	case KindMalformedJSON:
		if e.Err != nil {
			return fmt.Sprintf("extract: malformed JSON: %v", e.Err)
		}
		return "extract: malformed JSON"
	case KindMissingField:
		return fmt.Sprintf("extract: missing required field %q", e.Field)
	case KindInvalidEnumValue:
		return fmt.Sprintf("extract: invalid insurance_status value %q", e.Value)
	case KindInvalidField:
		if e.Err != nil {
			return fmt.Sprintf("extract: invalid field %q: %v", e.Field, e.Err)
		}
		return fmt.Sprintf("extract: invalid field %q", e.Field)
	default:
		return fmt.Sprintf("extract: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
// A target with Field or Value set must match those too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Field != "" && t.Field != e.Field {
		return false
	}
	if t.Value != "" && t.Value != e.Value {
		return false
	}
	return true
}

// KindOf returns the extraction kind carried by err, if any
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
