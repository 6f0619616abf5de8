package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches any ProviderError of kind KindTimeout via errors.Is.
var ErrTimeout = errors.New("provider timeout")

// ErrEmptyVideoRef is returned when Assess is called without a video reference.
var ErrEmptyVideoRef = errors.New("video reference is empty")

// ConfigurationError reports a required setting that is absent.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return e.Setting + " not set"
}

// Kind classifies provider failures.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindUpstream      Kind = "upstream"
	KindTransport     Kind = "transport"
	KindEmptyResponse Kind = "empty_response"
	KindCanceled      Kind = "canceled"
)

// ProviderError describes a failed provider call. StatusCode and Body are
// set when the remote endpoint answered with a non-success status.
type ProviderError struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Body       string
	Timeout    time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Kind == KindTimeout && e.Timeout > 0:
		return fmt.Sprintf("%s request timed out after %s", e.Provider, e.Timeout)
	case e.Kind == KindTimeout:
		return e.Provider + " request timed out"
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error: %d - %s", e.Provider, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrTimeout && e.Kind == KindTimeout
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
