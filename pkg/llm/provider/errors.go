package provider

import (
	"errors"
	"fmt"
)

// ErrBackendTimeout reports an inference call that hit its deadline. It is
// surfaced instead of silently-empty content so callers can tell a slow
// backend from a quiet one.
var ErrBackendTimeout = errors.New("backend call timed out")

// BackendError is a non-timeout failure from an inference backend.
// StatusCode is zero when the failure happened before an HTTP response.
type BackendError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s backend error: %s", e.Provider, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
