package source

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks invalid crawl setups; callers must not retry.
var ErrConfiguration = errors.New("configuration error")

// ErrMalformedResponse marks upstream payloads that do not match the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// ConfigurationError explains why a query or crawl setup was rejected.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// MalformedResponseError carries the decode or shape failure.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

// Is reports ErrMalformedResponse as a match.
func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// Unwrap exposes the underlying decode error, if any.
func (e *MalformedResponseError) Unwrap() error { return e.Err }
