package testutils

import (
	"context"

	"github.com/lodestarhq/aide/pkg/llm/router"
)

// StaticRouter routes every request to one fixed decision.
type StaticRouter struct {
	// Decision is returned by every Route call.
	Decision *router.Decision

	// Err causes Route to fail.
	Err error

	// Routes counts Route calls.
	Routes int
}

func (r *StaticRouter) Route(_ context.Context, _ bool) (*router.Decision, error) {
	r.Routes++
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Decision, nil
}
