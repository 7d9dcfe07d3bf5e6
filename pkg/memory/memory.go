// Package memory defines aide's four-layer memory model and the manager that
// reads, formats, and mutates it.
//
// The layers: Identity (slow-changing behavioral facts about the user),
// Factual (stable verified facts), Working (ephemeral per-request context,
// never persisted), and Episodic (per-session conversation summaries).
// Candidate memories proposed by the extraction pipeline are tracked as
// [Spot] records until they are applied into the canonical layers or
// rejected.
package memory

import "time"

// Type classifies a candidate memory produced by extraction.
type Type string

const (
	TypeUserFact       Type = "user_fact"
	TypeUserPreference Type = "user_preference"
	TypeSelfMemory     Type = "ai_self_memory"
	TypeCapability     Type = "capability"
	TypeGeneral        Type = "general"
)

// Valid reports whether t is one of the known memory types.
func (t Type) Valid() bool {
	switch t {
	case TypeUserFact, TypeUserPreference, TypeSelfMemory, TypeCapability, TypeGeneral:
		return true
	}
	return false
}

// Status is the lifecycle state of a Spot. Transitions move forward only.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusReviewed  Status = "reviewed"
	StatusApplied   Status = "applied"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusExtracted, StatusReviewed, StatusApplied, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusRejected
}

// CanTransition reports whether a spot in state s may move to state to.
// extracted → {reviewed, applied, rejected}; reviewed → {applied, rejected};
// applied and rejected are terminal.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusExtracted:
		return to == StatusReviewed || to == StatusApplied || to == StatusRejected
	case StatusReviewed:
		return to == StatusApplied || to == StatusRejected
	}
	return false
}

// Fact types for UserFact.FactType.
const (
	FactIdentity     = "identity"
	FactProfessional = "professional"
	FactPersonal     = "personal"
	FactContext      = "context"
)

// IdentityEntry is one identity-layer fact: a slow-changing behavioral or
// communication-style fact about a user. Unique per (user_id, category, key).
type IdentityEntry struct {
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserFact is one factual-layer fact. Unique per (user_id, fact_type, key).
type UserFact struct {
	UserID     string    `json:"user_id"`
	FactType   string    `json:"fact_type"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SelfMemory is a global (not per-user) fact the assistant holds about
// itself. Unique per (category, key).
type SelfMemory struct {
	Category   string    `json:"category"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Importance int       `json:"importance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Capability records something the assistant has demonstrated it can do.
// Unique per (name, domain). Proficiency never decreases on update.
type Capability struct {
	Name             string     `json:"name"`
	Domain           string     `json:"domain"`
	Description      string     `json:"description"`
	Proficiency      int        `json:"proficiency"`
	Evidence         []string   `json:"evidence,omitempty"`
	LastDemonstrated *time.Time `json:"last_demonstrated,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ConversationSummary is the episodic layer's record for one session:
// summarized tone/topics/open-threads, never raw transcript. Overwritten
// wholesale on each update.
type ConversationSummary struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Summary     string    `json:"summary"`
	Tone        string    `json:"tone,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	OpenThreads []string  `json:"open_threads,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session is one recorded conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionMessage is one turn of a session transcript, ordered by Seq.
type SessionMessage struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Spot is a candidate memory proposed by the extraction LLM, pending
// review/application. Key is the dedupe key derived from the typed metadata;
// spots are unique per (session_id, memory_type, key).
type Spot struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	UserID      string         `json:"user_id"`
	Type        Type           `json:"memory_type"`
	Key         string         `json:"key"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Confidence  float64        `json:"confidence"`
	Importance  int            `json:"importance"`
	Status      Status         `json:"status"`
	ExtractedAt time.Time      `json:"extracted_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty"`
	AppliedAt   *time.Time     `json:"applied_at,omitempty"`
}

// Working is the ephemeral per-request context layer. Rebuilt on every
// request from the clock, the calendar provider, and the active session
// title; never persisted and never cached.
type Working struct {
	Now          time.Time `json:"now"`
	Calendar     string    `json:"calendar,omitempty"`
	SessionTitle string    `json:"session_title,omitempty"`
}

// Layers aggregates the four memory layers for one user/session read.
type Layers struct {
	Identity []IdentityEntry       `json:"identity"`
	Factual  []UserFact            `json:"factual"`
	Working  Working               `json:"working"`
	Episodic []ConversationSummary `json:"episodic"`
}
