package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/calendar"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// stubStore satisfies memory.Store from fixed fixtures.
type stubStore struct {
	identity  []memory.IdentityEntry
	facts     []memory.UserFact
	selves    []memory.SelfMemory
	caps      []memory.Capability
	summaries []memory.ConversationSummary
	sessions  map[string]memory.Session
}

func (s *stubStore) ListIdentity(_ context.Context, _ string) ([]memory.IdentityEntry, error) {
	return s.identity, nil
}

func (s *stubStore) UpsertIdentity(_ context.Context, entry memory.IdentityEntry) error {
	s.identity = append(s.identity, entry)
	return nil
}

func (s *stubStore) ListFacts(_ context.Context, _ string) ([]memory.UserFact, error) {
	return s.facts, nil
}

func (s *stubStore) UpsertFact(_ context.Context, fact memory.UserFact) error {
	s.facts = append(s.facts, fact)
	return nil
}

func (s *stubStore) ListSelfMemories(_ context.Context) ([]memory.SelfMemory, error) {
	return s.selves, nil
}

func (s *stubStore) ListCapabilities(_ context.Context) ([]memory.Capability, error) {
	return s.caps, nil
}

func (s *stubStore) ListSummaries(_ context.Context, _ string, limit int) ([]memory.ConversationSummary, error) {
	if limit > 0 && len(s.summaries) > limit {
		return s.summaries[:limit], nil
	}
	return s.summaries, nil
}

func (s *stubStore) GetSummary(_ context.Context, sessionID string) (*memory.ConversationSummary, error) {
	for _, sm := range s.summaries {
		if sm.SessionID == sessionID {
			return &sm, nil
		}
	}
	return nil, storage.NotFoundError{Kind: "summary", Key: sessionID}
}

func (s *stubStore) UpsertSummary(_ context.Context, sm memory.ConversationSummary) error {
	for i := range s.summaries {
		if s.summaries[i].SessionID == sm.SessionID {
			s.summaries[i] = sm
			return nil
		}
	}
	s.summaries = append(s.summaries, sm)
	return nil
}

func (s *stubStore) GetSession(_ context.Context, id string) (*memory.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", Key: id}
	}
	return &sess, nil
}

var _ = Describe("Manager", func() {
	var (
		store *stubStore
		mgr   *memory.Manager
		ctx   context.Context
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store = &stubStore{sessions: map[string]memory.Session{}}
		mgr = memory.NewManager(store, &calendar.Static{Text: "9:00 standup"}, zap.NewNop(),
			memory.WithClock(func() time.Time { return now }))
	})

	Describe("BuildWorking", func() {
		It("rebuilds the layer fresh from clock, calendar, and session title", func() {
			store.sessions["ses-1"] = memory.Session{ID: "ses-1", Title: "trip planning"}

			w := mgr.BuildWorking(ctx, "u1", "ses-1", "what's next?")
			Expect(w.Now).To(Equal(now))
			Expect(w.Calendar).To(Equal("9:00 standup"))
			Expect(w.SessionTitle).To(Equal("trip planning"))
		})

		It("leaves the title empty when the session is unknown", func() {
			w := mgr.BuildWorking(ctx, "u1", "ses-ghost", "")
			Expect(w.SessionTitle).To(BeEmpty())
		})
	})

	Describe("Episodic", func() {
		It("pins the current session's summary to the front", func() {
			store.summaries = []memory.ConversationSummary{
				{SessionID: "ses-new", Summary: "newest", UpdatedAt: now},
				{SessionID: "ses-mid", Summary: "middle", UpdatedAt: now.Add(-time.Hour)},
				{SessionID: "ses-old", Summary: "oldest", UpdatedAt: now.Add(-2 * time.Hour)},
			}

			out, err := mgr.Episodic(ctx, "u1", "ses-mid")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
			Expect(out[0].SessionID).To(Equal("ses-mid"))
			Expect(out[1].SessionID).To(Equal("ses-new"))
			Expect(out[2].SessionID).To(Equal("ses-old"))
		})

		It("keeps the listing order when no session is active", func() {
			store.summaries = []memory.ConversationSummary{
				{SessionID: "ses-new", Summary: "newest"},
				{SessionID: "ses-old", Summary: "oldest"},
			}

			out, err := mgr.Episodic(ctx, "u1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(out[0].SessionID).To(Equal("ses-new"))
		})
	})

	Describe("AllLayers", func() {
		It("aggregates all four layers", func() {
			store.identity = []memory.IdentityEntry{
				{UserID: "u1", Category: "communication", Key: "style", Value: "concise"},
			}
			store.facts = []memory.UserFact{
				{UserID: "u1", FactType: "identity", Key: "name", Value: "Dana"},
			}
			store.summaries = []memory.ConversationSummary{
				{SessionID: "ses-0", Summary: "Planned a trip"},
			}

			l, err := mgr.AllLayers(ctx, "u1", "", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Identity).To(HaveLen(1))
			Expect(l.Factual).To(HaveLen(1))
			Expect(l.Episodic).To(HaveLen(1))
			Expect(l.Working.Now).To(Equal(now))
		})
	})

	Describe("FormatForPrompt", func() {
		It("renders every populated section in fixed order", func() {
			store.sessions["ses-1"] = memory.Session{ID: "ses-1", Title: "trip planning"}
			store.identity = []memory.IdentityEntry{
				{UserID: "u1", Category: "communication", Key: "style", Value: "concise"},
			}
			store.facts = []memory.UserFact{
				{UserID: "u1", FactType: "identity", Key: "name", Value: "Dana"},
			}
			store.summaries = []memory.ConversationSummary{
				{SessionID: "ses-0", Summary: "Planned a trip", Tone: "warm",
					Topics: []string{"travel"}, OpenThreads: []string{"book flights"}},
			}

			out, err := mgr.FormatForPrompt(ctx, "u1", "ses-1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(`# User Profile
- [communication] style: concise

# Known Facts
- [identity] name: Dana

# Current Context
Current time: Sunday, 1 June 2025 12:00 UTC
Active conversation: trip planning

## Calendar
9:00 standup

# Recent Conversations
- Planned a trip (tone: warm; topics: travel; open: book flights)`))
		})

		It("omits empty sections but always reports the time", func() {
			mgr = memory.NewManager(store, &calendar.Static{}, zap.NewNop(),
				memory.WithClock(func() time.Time { return now }))

			out, err := mgr.FormatForPrompt(ctx, "u1", "", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(`# Current Context
Current time: Sunday, 1 June 2025 12:00 UTC`))
		})

		It("is byte-identical across repeated renders", func() {
			store.identity = []memory.IdentityEntry{
				{UserID: "u1", Category: "tone", Key: "formality", Value: "casual"},
			}

			first, err := mgr.FormatForPrompt(ctx, "u1", "", "")
			Expect(err).NotTo(HaveOccurred())
			second, err := mgr.FormatForPrompt(ctx, "u1", "", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})
	})

	Describe("FormatSelfMemories", func() {
		It("returns empty when the assistant knows nothing about itself", func() {
			out, err := mgr.FormatSelfMemories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
		})

		It("renders self memories and capabilities together", func() {
			store.selves = []memory.SelfMemory{
				{Category: "milestones", Key: "first_poem", Value: "wrote a haiku the user liked"},
			}
			store.caps = []memory.Capability{
				{Name: "scheduling", Domain: "productivity", Proficiency: 7, Description: "books meetings"},
			}

			out, err := mgr.FormatSelfMemories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(`# About Me
- [milestones] first_poem: wrote a haiku the user liked
- scheduling (productivity), proficiency 7/10: books meetings`))
		})
	})

	Describe("updates", func() {
		It("writes through to the store", func() {
			Expect(mgr.UpdateIdentity(ctx, memory.IdentityEntry{
				UserID: "u1", Category: "tone", Key: "formality", Value: "casual",
			})).To(Succeed())
			Expect(mgr.UpdateFactual(ctx, memory.UserFact{
				UserID: "u1", FactType: "personal", Key: "dog", Value: "Biscuit",
			})).To(Succeed())
			Expect(mgr.UpdateEpisodic(ctx, memory.ConversationSummary{
				UserID: "u1", SessionID: "ses-9", Summary: "talked about dogs",
			})).To(Succeed())

			Expect(store.identity).To(HaveLen(1))
			Expect(store.facts).To(HaveLen(1))
			Expect(store.summaries).To(HaveLen(1))
		})
	})
})
