package extraction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// RevisionMinMessages is the transcript floor for revision candidates;
// anything shorter has nothing worth a second look.
const RevisionMinMessages = 5

// RevisionResult aggregates one ReviseMany sweep.
type RevisionResult struct {
	// Examined counts sessions the sweep looked at.
	Examined int

	// Revised counts sessions that produced at least one spot write.
	Revised int

	// Skipped counts candidate sessions passed over by Extract's own
	// re-check, which catches sessions finalized or re-extracted between
	// candidate selection and their turn in the sweep.
	Skipped int

	// SpotsWritten is the total spots inserted or updated across sessions.
	SpotsWritten int

	// Errors collects per-session failures; the sweep never aborts on them.
	Errors []error
}

// Summary renders the sweep for logs and CLI output.
func (r *RevisionResult) Summary() string {
	return fmt.Sprintf("examined %d sessions: %d revised (%d spots), %d skipped, %d errors",
		r.Examined, r.Revised, r.SpotsWritten, r.Skipped, len(r.Errors))
}

// RevisionCandidates lists sessions eligible for a revision pass: long enough
// to matter, not finalized, outside the rate-limit window, most recently
// updated first, optionally bounded to the last daysBack days. Ineligible
// sessions are excluded before limit applies, so a run of finalized or
// freshly-revised sessions at the top of the ordering cannot crowd out older
// sessions that are still open. ReviseMany consumes this directly; the
// serve-mode ticker uses it to fan sessions out over the worker pool instead.
func (e *Extractor) RevisionCandidates(ctx context.Context, limit, daysBack int) ([]memory.Session, error) {
	filter := storage.SessionFilter{
		MinMessages: RevisionMinMessages,
	}
	if daysBack > 0 {
		filter.UpdatedAfter = e.opts.Clock().AddDate(0, 0, -daysBack)
	}

	sessions, err := e.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing revision candidates: %w", err)
	}

	now := e.opts.Clock()
	var out []memory.Session
	for _, s := range sessions {
		if limit > 0 && len(out) >= limit {
			break
		}

		finalized, err := e.store.SessionFinalized(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("checking session %s finalization: %w", s.ID, err)
		}
		if finalized {
			continue
		}

		latest, err := e.store.LatestSpotTime(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("checking session %s extraction time: %w", s.ID, err)
		}
		if latest != nil && now.Sub(*latest) < e.opts.RevisionWindow {
			continue
		}

		out = append(out, s)
	}

	return out, nil
}

// ReviseMany sweeps recent sessions and runs a revision extraction on each.
// limit bounds how many sessions are examined (most recently updated first);
// daysBack > 0 restricts to sessions updated within that many days. Per-
// session failures are collected, never fatal.
func (e *Extractor) ReviseMany(ctx context.Context, limit, daysBack int) (*RevisionResult, error) {
	sessions, err := e.RevisionCandidates(ctx, limit, daysBack)
	if err != nil {
		return nil, err
	}

	result := &RevisionResult{}
	for _, s := range sessions {
		result.Examined++

		n, errs := e.Extract(ctx, s.ID, s.UserID, 0, true)
		skipped := false
		for _, err := range errs {
			if errors.Is(err, ErrSessionFinalized) || errors.Is(err, ErrSessionTooShort) {
				skipped = true
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("session %s: %w", s.ID, err))
		}

		switch {
		case n > 0:
			result.Revised++
			result.SpotsWritten += n
		case skipped || len(errs) == 0:
			// len(errs) == 0 with no writes is the rate-limit no-op.
			result.Skipped++
		}
	}

	e.log.Info("revision sweep complete", zap.String("result", result.Summary()))

	return result, nil
}
