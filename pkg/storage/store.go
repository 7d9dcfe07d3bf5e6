// Package storage defines the persistence contract for every memory layer
// and for the session/spot records the extraction pipeline works over.
package storage

import (
	"context"
	"time"

	"github.com/lodestarhq/aide/pkg/memory"
)

// Store is the interface drivers implement. All three drivers (sqlite,
// postgres, inmemory) honor the same ordering and upsert contracts, so
// callers never branch on the backend.
type Store interface {
	// ListIdentity returns a user's identity entries ordered by
	// (category, key).
	ListIdentity(ctx context.Context, userID string) ([]memory.IdentityEntry, error)

	// UpsertIdentity writes an identity entry, replacing any existing
	// entry with the same (user_id, category, key).
	UpsertIdentity(ctx context.Context, entry memory.IdentityEntry) error

	// ListFacts returns a user's facts ordered by (fact_type, key).
	ListFacts(ctx context.Context, userID string) ([]memory.UserFact, error)

	// UpsertFact writes a fact, replacing any existing fact with the same
	// (user_id, fact_type, key).
	UpsertFact(ctx context.Context, fact memory.UserFact) error

	// ListSelfMemories returns the assistant's own memories ordered by
	// (category, key). Self memories are global, not per user.
	ListSelfMemories(ctx context.Context) ([]memory.SelfMemory, error)

	// UpsertSelfMemory writes a self memory, replacing any existing one
	// with the same (category, key).
	UpsertSelfMemory(ctx context.Context, m memory.SelfMemory) error

	// ListCapabilities returns the assistant's capabilities ordered by
	// (domain, name).
	ListCapabilities(ctx context.Context) ([]memory.Capability, error)

	// GetCapability returns a capability by its (name, domain) identity.
	GetCapability(ctx context.Context, name, domain string) (*memory.Capability, error)

	// UpsertCapability writes a capability keyed by (name, domain).
	// Proficiency never regresses: the stored value is
	// max(existing, incoming) regardless of what the caller passes.
	UpsertCapability(ctx context.Context, c memory.Capability) error

	// ListSummaries returns up to limit of a user's conversation summaries,
	// most recently updated first. limit <= 0 means no limit.
	ListSummaries(ctx context.Context, userID string, limit int) ([]memory.ConversationSummary, error)

	// GetSummary returns the summary for a session, if one exists.
	GetSummary(ctx context.Context, sessionID string) (*memory.ConversationSummary, error)

	// UpsertSummary replaces a session's summary wholesale.
	UpsertSummary(ctx context.Context, s memory.ConversationSummary) error

	// GetSession returns a session by ID.
	GetSession(ctx context.Context, id string) (*memory.Session, error)

	// UpsertSession writes a session record keyed by ID.
	UpsertSession(ctx context.Context, s memory.Session) error

	// ListSessions returns sessions matching the filter, most recently
	// updated first.
	ListSessions(ctx context.Context, f SessionFilter) ([]memory.Session, error)

	// AppendMessages appends messages to a session's transcript. The store
	// assigns each message a per-session monotone Seq and bumps the
	// session's updated_at to the newest message's timestamp.
	AppendMessages(ctx context.Context, sessionID string, msgs ...memory.SessionMessage) error

	// ListMessages returns a session's transcript in Seq order. lastN > 0
	// restricts the result to the N most recent messages (still ascending).
	ListMessages(ctx context.Context, sessionID string, lastN int) ([]memory.SessionMessage, error)

	// CountMessages returns the number of messages in a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// GetSpot returns a memory spot by ID.
	GetSpot(ctx context.Context, id string) (*memory.Spot, error)

	// FindSpot returns the spot with the given (session, type, key)
	// identity, or a NotFoundError when none exists.
	FindSpot(ctx context.Context, sessionID string, t memory.Type, key string) (*memory.Spot, error)

	// ListSpots returns spots matching the filter, newest extraction first.
	ListSpots(ctx context.Context, f SpotFilter) ([]memory.Spot, error)

	// WriteSpots persists an extraction run atomically: inserts are
	// upserted on their (session_id, memory_type, key) identity, updates
	// replace the row with the matching ID. All writes land or none do.
	WriteSpots(ctx context.Context, inserts, updates []memory.Spot) error

	// UpdateSpotStatus moves a spot through its lifecycle. Backward or
	// repeated moves fail with a TransitionError. ReviewedAt/AppliedAt are
	// stamped with at as the status dictates.
	UpdateSpotStatus(ctx context.Context, id string, to memory.Status, at time.Time) error

	// ApplySpot promotes a spot to canonical memory: exactly one of the
	// application's payload fields is written to its layer and the spot is
	// marked applied, atomically.
	ApplySpot(ctx context.Context, app SpotApplication) error

	// LatestSpotTime returns the most recent extraction time among a
	// session's spots, or nil when the session has none.
	LatestSpotTime(ctx context.Context, sessionID string) (*time.Time, error)

	// SessionFinalized reports whether any of a session's spots has left
	// the extracted status, which closes the session to further
	// extraction.
	SessionFinalized(ctx context.Context, sessionID string) (bool, error)

	// Close closes the store and releases any resources.
	Close() error
}

// SpotFilter selects memory spots. Zero fields match everything.
type SpotFilter struct {
	UserID        string
	SessionID     string
	Type          memory.Type
	Statuses      []memory.Status
	MinConfidence float64
	MinImportance int
	Limit         int
}

// SessionFilter selects sessions. Zero fields match everything.
type SessionFilter struct {
	UserID       string
	MinMessages  int
	UpdatedAfter time.Time
	Limit        int
}

// SpotApplication describes an apply: which spot, when, and the single
// canonical record it becomes. Exactly one payload field must be set.
type SpotApplication struct {
	SpotID    string
	AppliedAt time.Time

	Fact       *memory.UserFact
	Preference *memory.IdentityEntry
	Self       *memory.SelfMemory
	Capability *memory.Capability
}
