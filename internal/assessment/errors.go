package assessment

import "fmt"

// Validation failure reasons.
const (
	ReasonNoStructuredPayload = "no_structured_payload"
	ReasonMalformedPayload    = "malformed_payload"
	ReasonMissingField        = "missing_field"
	ReasonWrongType           = "wrong_type"
	ReasonNotInteger          = "not_integer"
	ReasonOutOfRange          = "out_of_range"
	ReasonInvalidEnum         = "invalid_enum"
)

// ValidationError reports why provider output could not become a Result.
// Field is the dotted path of the offending field, empty for payload-level reasons.
type ValidationError struct {
	Reason string
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("assessment output invalid: %s (%s)", e.Reason, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("assessment output invalid: %s: %v", e.Reason, e.Err)
	}
	return "assessment output invalid: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fieldError(reason, field string) *ValidationError {
	return &ValidationError{Reason: reason, Field: field}
}
