package extraction

import (
	"errors"
	"fmt"
)

// ErrSessionTooShort means the session has fewer than two messages, not
// enough to extract anything from.
var ErrSessionTooShort = errors.New("session too short to extract from")

// ErrSessionFinalized means a spot of the session has already left the
// extracted status. Finalized sessions are never re-extracted.
var ErrSessionFinalized = errors.New("session memories already finalized")

// ParseError reports an extraction-LLM reply that was not the expected JSON.
// It is non-fatal: the run extracts zero memories and writes nothing.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing extraction reply: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// RedundancyError reports a failed redundancy-filter pass. The extraction
// run continues with the unfiltered candidate set.
type RedundancyError struct {
	Cause error
}

func (e *RedundancyError) Error() string {
	return fmt.Sprintf("redundancy filter: %v", e.Cause)
}

func (e *RedundancyError) Unwrap() error {
	return e.Cause
}
