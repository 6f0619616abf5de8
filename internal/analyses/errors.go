package analyses

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a status patch targets a record that
	// already reached a terminal status.
	ErrStatusConflict = errors.New("record already finalized")
	// ErrAnalysisInProgress rejects a review on a record that is still analyzing.
	ErrAnalysisInProgress = errors.New("analysis still in progress")
)

// Failure codes stored on failed records.
const (
	ErrorCodeProviderConfig  = "PROVIDER_CONFIG"
	ErrorCodeProviderTimeout = "PROVIDER_TIMEOUT"
	ErrorCodeProviderError   = "PROVIDER_ERROR"
	ErrorCodeOutputInvalid   = "OUTPUT_INVALID"
	ErrorCodeInternal        = "INTERNAL"
)

// IntakeError rejects a request before any record exists.
type IntakeError struct {
	Missing []string
	Field   string
	Reason  string
}

func (e *IntakeError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PipelineError reports a failed analysis. The record has already been
// finalized as failed; Err is the provider or validation cause.
type PipelineError struct {
	Code   string
	Reason string
	Field  string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Code, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
