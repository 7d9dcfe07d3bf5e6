// Package extraction turns raw conversation transcripts into durable
// memories. It runs out of band from the chat path: an extraction pass reads
// a session transcript, asks an LLM for candidate memories, filters the
// redundant ones, and persists the survivors as lifecycle-tracked spots.
// Applying a spot promotes it into the canonical tables the memory manager
// reads on the next request.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/eventstream"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

const (
	// DefaultRevisionWindow is how recently a session's spots must have
	// been written for a revision pass to skip it.
	DefaultRevisionWindow = time.Hour

	// DefaultMaxMessages caps the transcript length an extraction reads.
	DefaultMaxMessages = 50

	// maxTranscriptChars truncates the rendered transcript.
	maxTranscriptChars = 30000
)

// LLMCallFunc is the extraction pipeline's inference seam: one system
// prompt, one user content block, one text reply.
type LLMCallFunc func(ctx context.Context, systemPrompt, userContent string) (string, error)

// Options tune an Extractor. Zero values select the defaults.
type Options struct {
	// RevisionWindow is the per-session rate limit for revision passes.
	RevisionWindow time.Duration

	// MaxMessages bounds how much of a transcript one extraction reads.
	MaxMessages int

	// Clock replaces the time source, for tests.
	Clock func() time.Time
}

// Extractor owns the full spot lifecycle: extract, revise, apply, reject.
// It is the only writer that promotes spots into the canonical tables.
type Extractor struct {
	store storage.Store
	llm   LLMCallFunc
	pub   eventstream.Publisher
	log   *zap.Logger
	opts  Options
}

// New creates an Extractor. pub may be nil when no event stream is wired.
func New(store storage.Store, llm LLMCallFunc, pub eventstream.Publisher, log *zap.Logger, opts Options) (*Extractor, error) {
	if store == nil {
		return nil, errors.New("extractor requires a store")
	}
	if llm == nil {
		return nil, errors.New("extractor requires an llm call")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RevisionWindow <= 0 {
		opts.RevisionWindow = DefaultRevisionWindow
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Extractor{
		store: store,
		llm:   llm,
		pub:   pub,
		log:   log,
		opts:  opts,
	}, nil
}

// Extract runs one extraction pass over a session and returns the number of
// spots written plus any per-item errors. maxMessages <= 0 uses the
// configured default. revision passes are rate-limited per session and
// arbitrate against existing spots instead of overwriting them.
//
// The LLM calls happen outside the write transaction; the spot writes commit
// all-or-nothing.
func (e *Extractor) Extract(ctx context.Context, sessionID, userID string, maxMessages int, revision bool) (int, []error) {
	count, err := e.store.CountMessages(ctx, sessionID)
	if err != nil {
		return 0, []error{fmt.Errorf("counting session messages: %w", err)}
	}
	if count < 2 {
		return 0, []error{ErrSessionTooShort}
	}

	finalized, err := e.store.SessionFinalized(ctx, sessionID)
	if err != nil {
		return 0, []error{fmt.Errorf("checking session finalization: %w", err)}
	}
	if finalized {
		return 0, []error{ErrSessionFinalized}
	}

	now := e.opts.Clock()

	if revision {
		// Plain timestamp comparison; two concurrent revision triggers can
		// both pass it and double-write. Known race, kept as-is.
		latest, err := e.store.LatestSpotTime(ctx, sessionID)
		if err != nil {
			return 0, []error{fmt.Errorf("checking last extraction time: %w", err)}
		}
		if latest != nil && now.Sub(*latest) < e.opts.RevisionWindow {
			e.log.Debug("revision inside rate-limit window, skipping",
				zap.String("session_id", sessionID),
				zap.Time("last_extracted", *latest),
			)
			return 0, nil
		}
	}

	if maxMessages <= 0 {
		maxMessages = e.opts.MaxMessages
	}
	msgs, err := e.store.ListMessages(ctx, sessionID, maxMessages)
	if err != nil {
		return 0, []error{fmt.Errorf("loading transcript: %w", err)}
	}

	raw, err := e.llm(ctx, ExtractionSystemPrompt, buildTranscript(msgs))
	if err != nil {
		return 0, []error{fmt.Errorf("extraction llm call: %w", err)}
	}

	reply, err := parseExtractionReply(raw)
	if err != nil {
		e.log.Warn("extraction reply did not parse",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return 0, []error{err}
	}

	candidates, errs := spotsFromReply(reply, userID, sessionID, now)
	if len(candidates) == 0 {
		return 0, errs
	}

	candidates, errs = e.applyRedundancyFilter(ctx, userID, candidates, errs)
	if len(candidates) == 0 {
		return 0, errs
	}

	var inserts, updates []memory.Spot
	for _, c := range candidates {
		if revision {
			existing, err := e.store.FindSpot(ctx, sessionID, c.Type, c.Key)
			switch {
			case err == nil:
				// Arbitration: a revised candidate replaces the stored spot
				// only when it is strictly better on either score.
				if c.Importance > existing.Importance || c.Confidence > existing.Confidence {
					up := *existing
					up.Content = c.Content
					up.Metadata = c.Metadata
					up.Confidence = c.Confidence
					up.Importance = c.Importance
					up.ExtractedAt = now
					updates = append(updates, up)
				}
				continue
			case !storage.IsNotFound(err):
				errs = append(errs, fmt.Errorf("looking up spot %s/%s: %w", c.Type, c.Key, err))
				continue
			}
		}

		c.ID = "spot-" + uuid.NewString()
		inserts = append(inserts, c)
	}

	if len(inserts)+len(updates) == 0 {
		return 0, errs
	}

	if err := e.store.WriteSpots(ctx, inserts, updates); err != nil {
		errs = append(errs, err)
		return 0, errs
	}

	e.log.Info("extraction pass complete",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("inserted", len(inserts)),
		zap.Int("updated", len(updates)),
		zap.Bool("revision", revision),
	)

	return len(inserts) + len(updates), errs
}

// applyRedundancyFilter runs the dedup LLM pass when the user already has
// reviewed or applied spots. Any failure falls back to the unfiltered set
// with a RedundancyError collected for the caller.
func (e *Extractor) applyRedundancyFilter(ctx context.Context, userID string, candidates []memory.Spot, errs []error) ([]memory.Spot, []error) {
	terminal, err := e.store.ListSpots(ctx, storage.SpotFilter{
		UserID:   userID,
		Statuses: []memory.Status{memory.StatusReviewed, memory.StatusApplied},
		Limit:    1,
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("checking for reviewed spots: %w", err))
		return candidates, errs
	}
	if len(terminal) == 0 {
		// First extraction rounds have nothing to be redundant against.
		return candidates, errs
	}

	filtered, err := e.filterRedundant(ctx, userID, candidates)
	if err != nil {
		rerr := &RedundancyError{Cause: err}
		e.log.Warn("redundancy filter failed, keeping unfiltered candidates",
			zap.String("user_id", userID),
			zap.Error(rerr),
		)
		errs = append(errs, rerr)
		return candidates, errs
	}

	return filtered, errs
}

// filterRedundant asks the LLM which candidates survive against the user's
// canonical memories and returns the survivors in candidate order.
func (e *Extractor) filterRedundant(ctx context.Context, userID string, candidates []memory.Spot) ([]memory.Spot, error) {
	canonical, err := e.canonicalSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := e.llm(ctx, RedundancySystemPrompt, buildRedundancyContent(candidates, canonical))
	if err != nil {
		return nil, err
	}

	keep, err := parseKeepReply(raw)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(keep))
	var out []memory.Spot
	for _, i := range keep {
		if i < 0 || i >= len(candidates) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, candidates[i])
	}
	return out, nil
}

// canonicalSnapshot renders the user's canonical memories as lines the
// redundancy filter compares candidates against.
func (e *Extractor) canonicalSnapshot(ctx context.Context, userID string) (string, error) {
	var b strings.Builder

	facts, err := e.store.ListFacts(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading facts: %w", err)
	}
	for _, f := range facts {
		fmt.Fprintf(&b, "fact %s/%s: %s\n", f.FactType, f.Key, f.Value)
	}

	identity, err := e.store.ListIdentity(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading identity entries: %w", err)
	}
	for _, entry := range identity {
		fmt.Fprintf(&b, "preference %s/%s: %s\n", entry.Category, entry.Key, entry.Value)
	}

	selves, err := e.store.ListSelfMemories(ctx)
	if err != nil {
		return "", fmt.Errorf("reading self memories: %w", err)
	}
	for _, s := range selves {
		fmt.Fprintf(&b, "self %s/%s: %s\n", s.Category, s.Key, s.Value)
	}

	caps, err := e.store.ListCapabilities(ctx)
	if err != nil {
		return "", fmt.Errorf("reading capabilities: %w", err)
	}
	for _, c := range caps {
		fmt.Fprintf(&b, "capability %s/%s (proficiency %d): %s\n", c.Name, c.Domain, c.Proficiency, c.Description)
	}

	snapshot := b.String()
	if len(snapshot) > maxTranscriptChars {
		snapshot = snapshot[:maxTranscriptChars]
	}
	return snapshot, nil
}
