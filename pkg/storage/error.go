package storage

import (
	"errors"
	"fmt"

	"github.com/lodestarhq/aide/pkg/memory"
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	// Kind names the record type ("session", "spot", "capability", ...).
	Kind string

	// Key is the identifier that missed.
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return e.Kind + " not found"
	}

	return e.Kind + " not found: " + e.Key
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// StorageError wraps a failed storage operation with the operation name,
// so callers can log which part of the store misbehaved.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when a spot status change would move
// backward or out of a terminal status.
type TransitionError struct {
	SpotID string
	From   memory.Status
	To     memory.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("spot %s: invalid transition %s -> %s", e.SpotID, e.From, e.To)
}
