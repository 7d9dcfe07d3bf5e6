// Package calendar provides the calendar-context provider consumed by
// working memory. Providers never return errors: on any internal failure
// they degrade to a placeholder string so prompt assembly is never blocked.
package calendar

import (
	"context"
)

// Unavailable is the degraded placeholder returned when the provider cannot
// produce a summary.
const Unavailable = "(calendar unavailable)"

// Provider summarizes a user's upcoming schedule.
type Provider interface {
	// Summary returns a short natural-language schedule summary. message is
	// the current user message, when one is in flight, so providers can
	// scope the summary; it may be empty. Summary never fails.
	Summary(ctx context.Context, userID, message string) string
}

// Static returns the same text for every user. The zero value returns an
// empty summary, which omits the calendar section from prompts.
type Static struct {
	Text string
}

func (s Static) Summary(_ context.Context, _, _ string) string {
	return s.Text
}

// Provider kinds accepted by New.
const (
	KindNone = "none"
	KindHTTP = "http"
)
