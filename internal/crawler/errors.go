package crawler

import (
	"errors"
	"fmt"
)

// ErrTransientNetwork marks failures that may succeed on retry.
var ErrTransientNetwork = errors.New("transient network error")

// TransientNetworkError reports a transport failure or non-2xx response.
// StatusCode is zero when no response was received.
type TransientNetworkError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	msg := "upstream request failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrTransientNetwork.
func (e *TransientNetworkError) Is(target error) bool { return target == ErrTransientNetwork }

// Unwrap exposes the underlying transport error.
func (e *TransientNetworkError) Unwrap() error { return e.Err }
