// Package eventstream publishes memory lifecycle events to downstream
// consumers. Publishing is best-effort: a failed publish is logged by the
// caller and never rolls back the apply that produced it.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/lodestarhq/aide/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryApplied is emitted after a memory spot is promoted
	// into a canonical layer.
	EventTypeMemoryApplied = "aide.memory.applied"
)

// MemoryAppliedEvent is the transport-neutral payload for an applied spot.
type MemoryAppliedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	SpotID        string      `json:"spot_id"`
	UserID        string      `json:"user_id"`
	MemoryType    memory.Type `json:"memory_type"`
	Key           string      `json:"key"`
	AppliedAt     time.Time   `json:"applied_at"`
}

// NewMemoryAppliedEvent builds the event for a freshly applied spot.
func NewMemoryAppliedEvent(spot *memory.Spot, appliedAt time.Time) *MemoryAppliedEvent {
	return &MemoryAppliedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryApplied,
		EventID:       "evt-" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		SpotID:        spot.ID,
		UserID:        spot.UserID,
		MemoryType:    spot.Type,
		Key:           spot.Key,
		AppliedAt:     appliedAt,
	}
}
