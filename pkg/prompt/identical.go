package prompt

import (
	"fmt"
	"strconv"

	"github.com/lodestarhq/aide/pkg/llm"
)

// MismatchError reports the first difference between two assemblies. Index
// is -1 when the assemblies have different lengths.
type MismatchError struct {
	Index int
	Field string
	A, B  string
}

func (e *MismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("prompt assemblies differ in %s: %s != %s", e.Field, e.A, e.B)
	}
	return fmt.Sprintf("prompt assemblies differ at message %d (%s): %q != %q", e.Index, e.Field, e.A, e.B)
}

// AssertIdentical verifies two assemblies are byte-identical. Regression
// tests use it to pin the determinism contract.
func AssertIdentical(a, b []llm.Message) error {
	if len(a) != len(b) {
		return &MismatchError{Index: -1, Field: "length", A: strconv.Itoa(len(a)), B: strconv.Itoa(len(b))}
	}
	for i := range a {
		if a[i].Role != b[i].Role {
			return &MismatchError{Index: i, Field: "role", A: a[i].Role, B: b[i].Role}
		}
		if a[i].Content != b[i].Content {
			return &MismatchError{Index: i, Field: "content", A: a[i].Content, B: b[i].Content}
		}
	}
	return nil
}
