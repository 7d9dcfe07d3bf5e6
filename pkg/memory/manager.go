package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/calendar"
)

// EpisodicLimit is the number of recent session summaries included in the
// episodic layer.
const EpisodicLimit = 5

// Store is the slice of the persistence contract the manager uses. The
// drivers in pkg/storage satisfy it.
type Store interface {
	ListIdentity(ctx context.Context, userID string) ([]IdentityEntry, error)
	UpsertIdentity(ctx context.Context, entry IdentityEntry) error
	ListFacts(ctx context.Context, userID string) ([]UserFact, error)
	UpsertFact(ctx context.Context, fact UserFact) error
	ListSelfMemories(ctx context.Context) ([]SelfMemory, error)
	ListCapabilities(ctx context.Context) ([]Capability, error)
	ListSummaries(ctx context.Context, userID string, limit int) ([]ConversationSummary, error)
	GetSummary(ctx context.Context, sessionID string) (*ConversationSummary, error)
	UpsertSummary(ctx context.Context, s ConversationSummary) error
	GetSession(ctx context.Context, id string) (*Session, error)
}

// Manager reads the four layers and renders them as prompt text. It holds no
// state of its own: every read goes to the store, and the working layer is
// rebuilt from scratch on every call.
type Manager struct {
	store Store
	cal   calendar.Provider
	log   *zap.Logger
	now   func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the manager's time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager backed by the given store and calendar
// provider.
func NewManager(store Store, cal calendar.Provider, log *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		cal:   cal,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Identity returns the identity layer for a user.
func (m *Manager) Identity(ctx context.Context, userID string) ([]IdentityEntry, error) {
	return m.store.ListIdentity(ctx, userID)
}

// Factual returns the factual layer for a user.
func (m *Manager) Factual(ctx context.Context, userID string) ([]UserFact, error) {
	return m.store.ListFacts(ctx, userID)
}

// BuildWorking assembles the ephemeral working layer for one request. It is
// never persisted or cached: the clock and the calendar provider are
// consulted fresh every time.
func (m *Manager) BuildWorking(ctx context.Context, userID, sessionID, message string) Working {
	w := Working{
		Now:      m.now(),
		Calendar: m.cal.Summary(ctx, userID, message),
	}

	if sessionID != "" {
		sess, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			m.log.Debug("session title unavailable for working layer",
				zap.String("session_id", sessionID), zap.Error(err))
		} else {
			w.SessionTitle = sess.Title
		}
	}

	return w
}

// AllLayers loads all four layers for a user. sessionID and message feed
// the working layer; sessionID also pins the current session's summary to
// the front of the episodic layer.
func (m *Manager) AllLayers(ctx context.Context, userID, sessionID, message string) (*Layers, error) {
	identity, err := m.Identity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading identity layer: %w", err)
	}

	facts, err := m.Factual(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading factual layer: %w", err)
	}

	episodic, err := m.Episodic(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading episodic layer: %w", err)
	}

	return &Layers{
		Identity: identity,
		Factual:  facts,
		Working:  m.BuildWorking(ctx, userID, sessionID, message),
		Episodic: episodic,
	}, nil
}

// Episodic returns the EpisodicLimit most recent summaries, with the
// current session's summary first when one exists.
func (m *Manager) Episodic(ctx context.Context, userID, sessionID string) ([]ConversationSummary, error) {
	summaries, err := m.store.ListSummaries(ctx, userID, EpisodicLimit)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return summaries, nil
	}

	// Already in the window: move it to the front.
	for i, s := range summaries {
		if s.SessionID == sessionID {
			pinned := append([]ConversationSummary{s}, summaries[:i]...)
			return append(pinned, summaries[i+1:]...), nil
		}
	}

	// Outside the window: fetch it directly and displace the oldest.
	current, err := m.store.GetSummary(ctx, sessionID)
	if err != nil {
		// No summary yet for this session; that is the common case for a
		// conversation still in progress.
		return summaries, nil
	}
	summaries = append([]ConversationSummary{*current}, summaries...)
	if len(summaries) > EpisodicLimit {
		summaries = summaries[:EpisodicLimit]
	}
	return summaries, nil
}

// SelfKnowledge returns the assistant's own memories and capabilities for
// the prompt's about-me section.
func (m *Manager) SelfKnowledge(ctx context.Context) ([]SelfMemory, []Capability, error) {
	selves, err := m.store.ListSelfMemories(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading self memories: %w", err)
	}
	caps, err := m.store.ListCapabilities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading capabilities: %w", err)
	}
	return selves, caps, nil
}

// UpdateIdentity writes one identity-layer entry, replacing any existing
// entry with the same (user, category, key).
func (m *Manager) UpdateIdentity(ctx context.Context, entry IdentityEntry) error {
	return m.store.UpsertIdentity(ctx, entry)
}

// UpdateFactual writes one factual-layer fact, replacing any existing fact
// with the same (user, fact type, key).
func (m *Manager) UpdateFactual(ctx context.Context, fact UserFact) error {
	return m.store.UpsertFact(ctx, fact)
}

// UpdateEpisodic overwrites a session's summary wholesale. Used by the
// summarization step, never by the read path.
func (m *Manager) UpdateEpisodic(ctx context.Context, s ConversationSummary) error {
	return m.store.UpsertSummary(ctx, s)
}
