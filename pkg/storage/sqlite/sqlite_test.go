package sqlite_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/storage/sqlite"
)

var _ = Describe("Store", func() {
	var (
		store *sqlite.Store
		ctx   context.Context
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		var err error
		store, err = sqlite.NewStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	newSpot := func(id, sessionID, key string) memory.Spot {
		return memory.Spot{
			ID:          id,
			SessionID:   sessionID,
			UserID:      "u1",
			Type:        memory.TypeUserFact,
			Key:         key,
			Content:     "content for " + key,
			Confidence:  0.9,
			Importance:  7,
			Status:      memory.StatusExtracted,
			ExtractedAt: now,
		}
	}

	Describe("identity entries", func() {
		It("upserts and lists ordered by category then key", func() {
			entries := []memory.IdentityEntry{
				{UserID: "u1", Category: "tone", Key: "formality", Value: "casual", UpdatedAt: now},
				{UserID: "u1", Category: "communication", Key: "style", Value: "concise", UpdatedAt: now},
				{UserID: "u1", Category: "communication", Key: "emoji", Value: "sparingly", UpdatedAt: now},
				{UserID: "u2", Category: "tone", Key: "formality", Value: "formal", UpdatedAt: now},
			}
			for _, e := range entries {
				Expect(store.UpsertIdentity(ctx, e)).To(Succeed())
			}

			got, err := store.ListIdentity(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(3))
			Expect(got[0].Key).To(Equal("emoji"))
			Expect(got[1].Key).To(Equal("style"))
			Expect(got[2].Category).To(Equal("tone"))
		})

		It("replaces the value on a repeated key", func() {
			e := memory.IdentityEntry{UserID: "u1", Category: "tone", Key: "formality", Value: "casual", UpdatedAt: now}
			Expect(store.UpsertIdentity(ctx, e)).To(Succeed())

			e.Value = "playful"
			e.UpdatedAt = now.Add(time.Hour)
			Expect(store.UpsertIdentity(ctx, e)).To(Succeed())

			got, err := store.ListIdentity(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Value).To(Equal("playful"))
			Expect(got[0].UpdatedAt).To(Equal(now.Add(time.Hour)))
		})
	})

	Describe("user facts", func() {
		It("upserts on (fact_type, key) and keeps users separate", func() {
			Expect(store.UpsertFact(ctx, memory.UserFact{
				UserID: "u1", FactType: memory.FactIdentity, Key: "name",
				Value: "Dana", Confidence: 0.95, Source: "ses-1", UpdatedAt: now,
			})).To(Succeed())
			Expect(store.UpsertFact(ctx, memory.UserFact{
				UserID: "u2", FactType: memory.FactIdentity, Key: "name",
				Value: "Riley", Confidence: 0.9, UpdatedAt: now,
			})).To(Succeed())
			Expect(store.UpsertFact(ctx, memory.UserFact{
				UserID: "u1", FactType: memory.FactIdentity, Key: "name",
				Value: "Dana L.", Confidence: 0.99, Source: "ses-2", UpdatedAt: now.Add(time.Minute),
			})).To(Succeed())

			got, err := store.ListFacts(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Value).To(Equal("Dana L."))
			Expect(got[0].Confidence).To(BeNumerically("~", 0.99, 1e-9))
			Expect(got[0].Source).To(Equal("ses-2"))
		})
	})

	Describe("capabilities", func() {
		It("never lets proficiency regress on upsert", func() {
			Expect(store.UpsertCapability(ctx, memory.Capability{
				Name: "scheduling", Domain: "productivity", Description: "books meetings",
				Proficiency: 7, Evidence: []string{"ses-1"}, UpdatedAt: now,
			})).To(Succeed())

			Expect(store.UpsertCapability(ctx, memory.Capability{
				Name: "scheduling", Domain: "productivity", Description: "books and reschedules meetings",
				Proficiency: 4, Evidence: []string{"ses-1", "ses-2"}, UpdatedAt: now.Add(time.Hour),
			})).To(Succeed())

			got, err := store.GetCapability(ctx, "scheduling", "productivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Proficiency).To(Equal(7))
			Expect(got.Description).To(Equal("books and reschedules meetings"))
			Expect(got.Evidence).To(Equal([]string{"ses-1", "ses-2"}))
		})

		It("returns a NotFoundError for an unknown capability", func() {
			_, err := store.GetCapability(ctx, "nope", "nowhere")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("round-trips last_demonstrated", func() {
			last := now.Add(-24 * time.Hour)
			Expect(store.UpsertCapability(ctx, memory.Capability{
				Name: "poetry", Domain: "creative", Proficiency: 5,
				LastDemonstrated: &last, UpdatedAt: now,
			})).To(Succeed())

			got, err := store.GetCapability(ctx, "poetry", "creative")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LastDemonstrated).NotTo(BeNil())
			Expect(*got.LastDemonstrated).To(Equal(last))
		})
	})

	Describe("summaries", func() {
		It("overwrites wholesale and lists newest first with a limit", func() {
			for i, sid := range []string{"ses-a", "ses-b", "ses-c"} {
				Expect(store.UpsertSummary(ctx, memory.ConversationSummary{
					UserID: "u1", SessionID: sid, Summary: "summary " + sid,
					Topics: []string{"t" + sid}, UpdatedAt: now.Add(time.Duration(i) * time.Hour),
				})).To(Succeed())
			}

			Expect(store.UpsertSummary(ctx, memory.ConversationSummary{
				UserID: "u1", SessionID: "ses-a", Summary: "rewritten",
				Tone: "warm", OpenThreads: []string{"trip planning"},
				UpdatedAt: now.Add(10 * time.Hour),
			})).To(Succeed())

			got, err := store.ListSummaries(ctx, "u1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].SessionID).To(Equal("ses-a"))
			Expect(got[0].Summary).To(Equal("rewritten"))
			Expect(got[0].Topics).To(BeNil())
			Expect(got[0].OpenThreads).To(Equal([]string{"trip planning"}))
			Expect(got[1].SessionID).To(Equal("ses-c"))
		})
	})

	Describe("sessions and messages", func() {
		BeforeEach(func() {
			Expect(store.UpsertSession(ctx, memory.Session{
				ID: "ses-1", UserID: "u1", Title: "first chat", CreatedAt: now, UpdatedAt: now,
			})).To(Succeed())
		})

		It("returns NotFoundError for an unknown session", func() {
			_, err := store.GetSession(ctx, "ses-missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("assigns monotone seq on append and bumps updated_at", func() {
			Expect(store.AppendMessages(ctx, "ses-1",
				memory.SessionMessage{Role: "user", Content: "hi", CreatedAt: now.Add(time.Minute)},
				memory.SessionMessage{Role: "assistant", Content: "hello", CreatedAt: now.Add(2 * time.Minute)},
			)).To(Succeed())
			Expect(store.AppendMessages(ctx, "ses-1",
				memory.SessionMessage{Role: "user", Content: "how are you", CreatedAt: now.Add(3 * time.Minute)},
			)).To(Succeed())

			msgs, err := store.ListMessages(ctx, "ses-1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].Seq).To(Equal(1))
			Expect(msgs[1].Seq).To(Equal(2))
			Expect(msgs[2].Seq).To(Equal(3))

			sess, err := store.GetSession(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.UpdatedAt).To(Equal(now.Add(3 * time.Minute)))

			n, err := store.CountMessages(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("rejects appends to unknown sessions", func() {
			err := store.AppendMessages(ctx, "ses-missing",
				memory.SessionMessage{Role: "user", Content: "hi", CreatedAt: now})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns the transcript tail in ascending order", func() {
			for i := 0; i < 5; i++ {
				Expect(store.AppendMessages(ctx, "ses-1", memory.SessionMessage{
					Role: "user", Content: string(rune('a' + i)), CreatedAt: now.Add(time.Duration(i) * time.Minute),
				})).To(Succeed())
			}

			msgs, err := store.ListMessages(ctx, "ses-1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Seq).To(Equal(4))
			Expect(msgs[1].Seq).To(Equal(5))
		})

		It("filters sessions by message count and update time", func() {
			Expect(store.UpsertSession(ctx, memory.Session{
				ID: "ses-2", UserID: "u1", CreatedAt: now, UpdatedAt: now.Add(time.Hour),
			})).To(Succeed())
			Expect(store.AppendMessages(ctx, "ses-2",
				memory.SessionMessage{Role: "user", Content: "a", CreatedAt: now.Add(time.Hour)},
				memory.SessionMessage{Role: "assistant", Content: "b", CreatedAt: now.Add(time.Hour)},
			)).To(Succeed())

			got, err := store.ListSessions(ctx, storage.SessionFilter{UserID: "u1", MinMessages: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("ses-2"))

			got, err = store.ListSessions(ctx, storage.SessionFilter{UpdatedAfter: now.Add(30 * time.Minute)})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("ses-2"))
		})
	})

	Describe("memory spots", func() {
		It("round-trips a spot with metadata", func() {
			spot := newSpot("spot-1", "ses-1", "identity/name")
			spot.Metadata = map[string]any{"fact_type": "identity", "key": "name", "value": "Dana"}
			Expect(store.WriteSpots(ctx, []memory.Spot{spot}, nil)).To(Succeed())

			got, err := store.GetSpot(ctx, "spot-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Key).To(Equal("identity/name"))
			Expect(got.Metadata).To(HaveKeyWithValue("value", "Dana"))
			Expect(got.Status).To(Equal(memory.StatusExtracted))
			Expect(got.ExtractedAt).To(Equal(now))
			Expect(got.ReviewedAt).To(BeNil())

			found, err := store.FindSpot(ctx, "ses-1", memory.TypeUserFact, "identity/name")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("spot-1"))
		})

		It("overwrites the payload in place when the same candidate is inserted again", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())

			again := newSpot("spot-2", "ses-1", "identity/name")
			again.Content = "fresher content"
			again.Confidence = 0.97
			again.ExtractedAt = now.Add(time.Hour)
			Expect(store.WriteSpots(ctx, []memory.Spot{again}, nil)).To(Succeed())

			got, err := store.FindSpot(ctx, "ses-1", memory.TypeUserFact, "identity/name")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("spot-1"))
			Expect(got.Content).To(Equal("fresher content"))
			Expect(got.Confidence).To(BeNumerically("~", 0.97, 1e-9))
			Expect(got.ExtractedAt).To(Equal(now.Add(time.Hour)))

			_, err = store.GetSpot(ctx, "spot-2")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("writes nothing when any update in the batch misses", func() {
			update := newSpot("spot-missing", "ses-1", "identity/age")
			err := store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, []memory.Spot{update})
			Expect(err).To(HaveOccurred())

			_, err = store.GetSpot(ctx, "spot-1")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("filters and orders spots", func() {
			a := newSpot("spot-a", "ses-1", "identity/name")
			a.Confidence = 0.5
			a.Importance = 3
			b := newSpot("spot-b", "ses-1", "identity/city")
			b.Confidence = 0.9
			b.Importance = 8
			b.ExtractedAt = now.Add(time.Hour)
			c := newSpot("spot-c", "ses-2", "identity/job")
			c.UserID = "u2"
			Expect(store.WriteSpots(ctx, []memory.Spot{a, b, c}, nil)).To(Succeed())
			Expect(store.UpdateSpotStatus(ctx, "spot-a", memory.StatusReviewed, now)).To(Succeed())

			got, err := store.ListSpots(ctx, storage.SpotFilter{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal("spot-b"))

			got, err = store.ListSpots(ctx, storage.SpotFilter{
				UserID: "u1", Statuses: []memory.Status{memory.StatusReviewed},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("spot-a"))

			got, err = store.ListSpots(ctx, storage.SpotFilter{MinConfidence: 0.8, MinImportance: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
		})

		It("walks the lifecycle forward and stamps timestamps", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())

			Expect(store.UpdateSpotStatus(ctx, "spot-1", memory.StatusReviewed, now.Add(time.Minute))).To(Succeed())
			got, err := store.GetSpot(ctx, "spot-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(memory.StatusReviewed))
			Expect(got.ReviewedAt).NotTo(BeNil())
			Expect(*got.ReviewedAt).To(Equal(now.Add(time.Minute)))

			Expect(store.UpdateSpotStatus(ctx, "spot-1", memory.StatusApplied, now.Add(2*time.Minute))).To(Succeed())
			got, err = store.GetSpot(ctx, "spot-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.AppliedAt).NotTo(BeNil())
		})

		It("refuses backward and terminal transitions", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())
			Expect(store.UpdateSpotStatus(ctx, "spot-1", memory.StatusRejected, now)).To(Succeed())

			err := store.UpdateSpotStatus(ctx, "spot-1", memory.StatusApplied, now)
			var te *storage.TransitionError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.From).To(Equal(memory.StatusRejected))

			err = store.UpdateSpotStatus(ctx, "spot-1", memory.StatusExtracted, now)
			Expect(errors.As(err, &te)).To(BeTrue())
		})

		It("applies a fact spot atomically", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())

			Expect(store.ApplySpot(ctx, storage.SpotApplication{
				SpotID:    "spot-1",
				AppliedAt: now.Add(time.Minute),
				Fact: &memory.UserFact{
					UserID: "u1", FactType: memory.FactIdentity, Key: "name",
					Value: "Dana", Confidence: 0.9, Source: "ses-1", UpdatedAt: now.Add(time.Minute),
				},
			})).To(Succeed())

			facts, err := store.ListFacts(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(1))
			Expect(facts[0].Value).To(Equal("Dana"))

			got, err := store.GetSpot(ctx, "spot-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(memory.StatusApplied))
		})

		It("refuses to apply a rejected spot and leaves the layers untouched", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())
			Expect(store.UpdateSpotStatus(ctx, "spot-1", memory.StatusRejected, now)).To(Succeed())

			err := store.ApplySpot(ctx, storage.SpotApplication{
				SpotID:    "spot-1",
				AppliedAt: now,
				Fact:      &memory.UserFact{UserID: "u1", FactType: memory.FactIdentity, Key: "name", Value: "Dana", UpdatedAt: now},
			})
			var te *storage.TransitionError
			Expect(errors.As(err, &te)).To(BeTrue())

			facts, err := store.ListFacts(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(BeEmpty())
		})

		It("rejects applications without exactly one payload", func() {
			Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "ses-1", "identity/name")}, nil)).To(Succeed())

			err := store.ApplySpot(ctx, storage.SpotApplication{SpotID: "spot-1", AppliedAt: now})
			Expect(err).To(HaveOccurred())
		})

		It("tracks the latest extraction time and finalization", func() {
			latest, err := store.LatestSpotTime(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(BeNil())

			a := newSpot("spot-a", "ses-1", "identity/name")
			b := newSpot("spot-b", "ses-1", "identity/city")
			b.ExtractedAt = now.Add(2 * time.Hour)
			Expect(store.WriteSpots(ctx, []memory.Spot{a, b}, nil)).To(Succeed())

			latest, err = store.LatestSpotTime(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(*latest).To(Equal(now.Add(2 * time.Hour)))

			final, err := store.SessionFinalized(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(final).To(BeFalse())

			Expect(store.UpdateSpotStatus(ctx, "spot-a", memory.StatusReviewed, now)).To(Succeed())

			final, err = store.SessionFinalized(ctx, "ses-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(final).To(BeTrue())
		})
	})
})
