// Package inmemory implements storage.Store with maps. It backs tests and
// throwaway runs; nothing survives the process.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// Store implements storage.Store using in-memory maps.
type Store struct {
	// mu guards every map below. One lock keeps multi-record operations
	// (WriteSpots, ApplySpot) atomic.
	mu sync.RWMutex

	identity  map[string]memory.IdentityEntry       // user|category|key
	facts     map[string]memory.UserFact            // user|fact_type|key
	selves    map[string]memory.SelfMemory          // category|key
	caps      map[string]memory.Capability          // name|domain
	summaries map[string]memory.ConversationSummary // session id
	sessions  map[string]memory.Session             // session id
	messages  map[string][]memory.SessionMessage    // session id, Seq order
	spots     map[string]memory.Spot                // spot id
	spotIDs   map[string]string                     // session|type|key -> spot id
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		identity:  make(map[string]memory.IdentityEntry),
		facts:     make(map[string]memory.UserFact),
		selves:    make(map[string]memory.SelfMemory),
		caps:      make(map[string]memory.Capability),
		summaries: make(map[string]memory.ConversationSummary),
		sessions:  make(map[string]memory.Session),
		messages:  make(map[string][]memory.SessionMessage),
		spots:     make(map[string]memory.Spot),
		spotIDs:   make(map[string]string),
	}
}

// joinKey builds a composite map key. The separator never appears in
// identifiers, so composite keys cannot collide.
func joinKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (s *Store) ListIdentity(_ context.Context, userID string) ([]memory.IdentityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.IdentityEntry
	for _, e := range s.identity {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) UpsertIdentity(_ context.Context, entry memory.IdentityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertIdentityLocked(entry)
	return nil
}

func (s *Store) upsertIdentityLocked(entry memory.IdentityEntry) {
	s.identity[joinKey(entry.UserID, entry.Category, entry.Key)] = entry
}

func (s *Store) ListFacts(_ context.Context, userID string) ([]memory.UserFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.UserFact
	for _, f := range s.facts {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FactType != out[j].FactType {
			return out[i].FactType < out[j].FactType
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) UpsertFact(_ context.Context, fact memory.UserFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertFactLocked(fact)
	return nil
}

func (s *Store) upsertFactLocked(fact memory.UserFact) {
	s.facts[joinKey(fact.UserID, fact.FactType, fact.Key)] = fact
}

func (s *Store) ListSelfMemories(_ context.Context) ([]memory.SelfMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.SelfMemory, 0, len(s.selves))
	for _, m := range s.selves {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) UpsertSelfMemory(_ context.Context, m memory.SelfMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertSelfLocked(m)
	return nil
}

func (s *Store) upsertSelfLocked(m memory.SelfMemory) {
	s.selves[joinKey(m.Category, m.Key)] = m
}

func (s *Store) ListCapabilities(_ context.Context) ([]memory.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.Capability, 0, len(s.caps))
	for _, c := range s.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCapability(_ context.Context, name, domain string) (*memory.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.caps[joinKey(name, domain)]
	if !ok {
		return nil, storage.NotFoundError{Kind: "capability", Key: name + "/" + domain}
	}
	return &c, nil
}

func (s *Store) UpsertCapability(_ context.Context, c memory.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertCapabilityLocked(c)
	return nil
}

// upsertCapabilityLocked writes c, clamping proficiency so it never drops
// below what is already recorded.
func (s *Store) upsertCapabilityLocked(c memory.Capability) {
	k := joinKey(c.Name, c.Domain)
	if existing, ok := s.caps[k]; ok && existing.Proficiency > c.Proficiency {
		c.Proficiency = existing.Proficiency
	}
	s.caps[k] = c
}

func (s *Store) ListSummaries(_ context.Context, userID string, limit int) ([]memory.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.ConversationSummary
	for _, sm := range s.summaries {
		if sm.UserID == userID {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetSummary(_ context.Context, sessionID string) (*memory.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sm, ok := s.summaries[sessionID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "summary", Key: sessionID}
	}
	return &sm, nil
}

func (s *Store) UpsertSummary(_ context.Context, sm memory.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[sm.SessionID] = sm
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*memory.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", Key: id}
	}
	return &sess, nil
}

func (s *Store) UpsertSession(_ context.Context, sess memory.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) ListSessions(_ context.Context, f storage.SessionFilter) ([]memory.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.Session
	for _, sess := range s.sessions {
		if f.UserID != "" && sess.UserID != f.UserID {
			continue
		}
		if f.MinMessages > 0 && len(s.messages[sess.ID]) < f.MinMessages {
			continue
		}
		if !f.UpdatedAfter.IsZero() && !sess.UpdatedAt.After(f.UpdatedAfter) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) AppendMessages(_ context.Context, sessionID string, msgs ...memory.SessionMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return storage.NotFoundError{Kind: "session", Key: sessionID}
	}

	base := len(s.messages[sessionID])
	for i, m := range msgs {
		m.SessionID = sessionID
		m.Seq = base + i + 1
		s.messages[sessionID] = append(s.messages[sessionID], m)
		if m.CreatedAt.After(sess.UpdatedAt) {
			sess.UpdatedAt = m.CreatedAt
		}
	}
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string, lastN int) ([]memory.SessionMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if lastN > 0 && len(msgs) > lastN {
		msgs = msgs[len(msgs)-lastN:]
	}
	out := make([]memory.SessionMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) CountMessages(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages[sessionID]), nil
}

func (s *Store) GetSpot(_ context.Context, id string) (*memory.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spot, ok := s.spots[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "spot", Key: id}
	}
	return &spot, nil
}

func (s *Store) FindSpot(_ context.Context, sessionID string, t memory.Type, key string) (*memory.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.spotIDs[joinKey(sessionID, string(t), key)]
	if !ok {
		return nil, storage.NotFoundError{Kind: "spot", Key: key}
	}
	spot := s.spots[id]
	return &spot, nil
}

func (s *Store) ListSpots(_ context.Context, f storage.SpotFilter) ([]memory.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.Spot
	for _, spot := range s.spots {
		if !matchSpot(spot, f) {
			continue
		}
		out = append(out, spot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExtractedAt.Equal(out[j].ExtractedAt) {
			return out[i].ExtractedAt.After(out[j].ExtractedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchSpot(spot memory.Spot, f storage.SpotFilter) bool {
	if f.UserID != "" && spot.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && spot.SessionID != f.SessionID {
		return false
	}
	if f.Type != "" && spot.Type != f.Type {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if spot.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinConfidence > 0 && spot.Confidence < f.MinConfidence {
		return false
	}
	if f.MinImportance > 0 && spot.Importance < f.MinImportance {
		return false
	}
	return true
}

func (s *Store) WriteSpots(_ context.Context, inserts, updates []memory.Spot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching the maps so a failure leaves the
	// store unchanged.
	for _, spot := range inserts {
		if spot.ID == "" {
			return &storage.StorageError{Op: "write_spots", Err: errors.New("insert missing spot id")}
		}
	}
	for _, spot := range updates {
		if _, ok := s.spots[spot.ID]; !ok {
			return storage.NotFoundError{Kind: "spot", Key: spot.ID}
		}
	}

	for _, spot := range inserts {
		identity := joinKey(spot.SessionID, string(spot.Type), spot.Key)
		if existingID, ok := s.spotIDs[identity]; ok {
			// Same candidate seen again: latest extraction wins, the
			// original row keeps its ID and status.
			existing := s.spots[existingID]
			existing.Content = spot.Content
			existing.Metadata = spot.Metadata
			existing.Confidence = spot.Confidence
			existing.Importance = spot.Importance
			existing.ExtractedAt = spot.ExtractedAt
			s.spots[existingID] = existing
			continue
		}
		s.spots[spot.ID] = spot
		s.spotIDs[identity] = spot.ID
	}
	for _, spot := range updates {
		s.spots[spot.ID] = spot
	}
	return nil
}

func (s *Store) UpdateSpotStatus(_ context.Context, id string, to memory.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateSpotStatusLocked(id, to, at)
}

func (s *Store) updateSpotStatusLocked(id string, to memory.Status, at time.Time) error {
	spot, ok := s.spots[id]
	if !ok {
		return storage.NotFoundError{Kind: "spot", Key: id}
	}
	if !spot.Status.CanTransition(to) {
		return &storage.TransitionError{SpotID: id, From: spot.Status, To: to}
	}

	spot.Status = to
	switch to {
	case memory.StatusReviewed:
		spot.ReviewedAt = &at
	case memory.StatusApplied:
		spot.AppliedAt = &at
	}
	s.spots[id] = spot
	return nil
}

func (s *Store) ApplySpot(_ context.Context, app storage.SpotApplication) error {
	if err := countPayloads(app); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateSpotStatusLocked(app.SpotID, memory.StatusApplied, app.AppliedAt); err != nil {
		return err
	}

	switch {
	case app.Fact != nil:
		s.upsertFactLocked(*app.Fact)
	case app.Preference != nil:
		s.upsertIdentityLocked(*app.Preference)
	case app.Self != nil:
		s.upsertSelfLocked(*app.Self)
	case app.Capability != nil:
		s.upsertCapabilityLocked(*app.Capability)
	}
	return nil
}

func countPayloads(app storage.SpotApplication) error {
	n := 0
	if app.Fact != nil {
		n++
	}
	if app.Preference != nil {
		n++
	}
	if app.Self != nil {
		n++
	}
	if app.Capability != nil {
		n++
	}
	if n != 1 {
		return &storage.StorageError{Op: "apply_spot", Err: errors.New("exactly one payload required")}
	}
	return nil
}

func (s *Store) LatestSpotTime(_ context.Context, sessionID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for _, spot := range s.spots {
		if spot.SessionID != sessionID {
			continue
		}
		if latest == nil || spot.ExtractedAt.After(*latest) {
			t := spot.ExtractedAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *Store) SessionFinalized(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, spot := range s.spots {
		if spot.SessionID == sessionID && spot.Status != memory.StatusExtracted {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
