package inmemory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/storage/inmemory"
)

var _ = Describe("Store", func() {
	var (
		store *inmemory.Store
		ctx   context.Context
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store = inmemory.NewStore()
	})

	newSpot := func(id, key string) memory.Spot {
		return memory.Spot{
			ID:          id,
			SessionID:   "ses-1",
			UserID:      "u1",
			Type:        memory.TypeUserPreference,
			Key:         key,
			Content:     "content for " + key,
			Confidence:  0.8,
			Importance:  6,
			Status:      memory.StatusExtracted,
			ExtractedAt: now,
		}
	}

	It("upserts facts on their (fact_type, key) identity", func() {
		Expect(store.UpsertFact(ctx, memory.UserFact{
			UserID: "u1", FactType: memory.FactPersonal, Key: "dog_name", Value: "Miso", UpdatedAt: now,
		})).To(Succeed())
		Expect(store.UpsertFact(ctx, memory.UserFact{
			UserID: "u1", FactType: memory.FactPersonal, Key: "dog_name", Value: "Mochi", UpdatedAt: now.Add(time.Hour),
		})).To(Succeed())

		facts, err := store.ListFacts(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Value).To(Equal("Mochi"))
	})

	It("keeps capability proficiency monotone", func() {
		Expect(store.UpsertCapability(ctx, memory.Capability{
			Name: "scheduling", Domain: "productivity", Proficiency: 6, UpdatedAt: now,
		})).To(Succeed())
		Expect(store.UpsertCapability(ctx, memory.Capability{
			Name: "scheduling", Domain: "productivity", Proficiency: 3, UpdatedAt: now.Add(time.Hour),
		})).To(Succeed())

		got, err := store.GetCapability(ctx, "scheduling", "productivity")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Proficiency).To(Equal(6))
	})

	It("assigns seq on append and rejects unknown sessions", func() {
		Expect(store.UpsertSession(ctx, memory.Session{ID: "ses-1", UserID: "u1", CreatedAt: now, UpdatedAt: now})).To(Succeed())
		Expect(store.AppendMessages(ctx, "ses-1",
			memory.SessionMessage{Role: "user", Content: "hi", CreatedAt: now},
			memory.SessionMessage{Role: "assistant", Content: "hello", CreatedAt: now.Add(time.Second)},
		)).To(Succeed())

		msgs, err := store.ListMessages(ctx, "ses-1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs[0].Seq).To(Equal(1))
		Expect(msgs[1].Seq).To(Equal(2))

		err = store.AppendMessages(ctx, "ses-ghost", memory.SessionMessage{Role: "user", Content: "?"})
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("upserts a re-extracted candidate in place, keeping ID and status", func() {
		Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "communication/style")}, nil)).To(Succeed())

		again := newSpot("spot-2", "communication/style")
		again.Confidence = 0.95
		Expect(store.WriteSpots(ctx, []memory.Spot{again}, nil)).To(Succeed())

		got, err := store.FindSpot(ctx, "ses-1", memory.TypeUserPreference, "communication/style")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal("spot-1"))
		Expect(got.Confidence).To(BeNumerically("~", 0.95, 1e-9))

		_, err = store.GetSpot(ctx, "spot-2")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("leaves the store untouched when a batch update misses", func() {
		err := store.WriteSpots(ctx,
			[]memory.Spot{newSpot("spot-1", "communication/style")},
			[]memory.Spot{newSpot("spot-ghost", "communication/emoji")})
		Expect(err).To(HaveOccurred())

		_, err = store.GetSpot(ctx, "spot-1")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("enforces forward-only lifecycle transitions", func() {
		Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "communication/style")}, nil)).To(Succeed())
		Expect(store.UpdateSpotStatus(ctx, "spot-1", memory.StatusApplied, now)).To(Succeed())

		err := store.UpdateSpotStatus(ctx, "spot-1", memory.StatusReviewed, now)
		var te *storage.TransitionError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.From).To(Equal(memory.StatusApplied))
		Expect(te.To).To(Equal(memory.StatusReviewed))
	})

	It("applies a preference spot and marks the session finalized", func() {
		Expect(store.WriteSpots(ctx, []memory.Spot{newSpot("spot-1", "communication/style")}, nil)).To(Succeed())

		Expect(store.ApplySpot(ctx, storage.SpotApplication{
			SpotID:    "spot-1",
			AppliedAt: now,
			Preference: &memory.IdentityEntry{
				UserID: "u1", Category: "communication", Key: "style", Value: "concise", UpdatedAt: now,
			},
		})).To(Succeed())

		entries, err := store.ListIdentity(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Value).To(Equal("concise"))

		final, err := store.SessionFinalized(ctx, "ses-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(final).To(BeTrue())
	})

	It("filters spots by status and confidence", func() {
		low := newSpot("spot-low", "communication/emoji")
		low.Confidence = 0.3
		high := newSpot("spot-high", "communication/style")
		high.Confidence = 0.9
		high.ExtractedAt = now.Add(time.Minute)
		Expect(store.WriteSpots(ctx, []memory.Spot{low, high}, nil)).To(Succeed())

		got, err := store.ListSpots(ctx, storage.SpotFilter{UserID: "u1", MinConfidence: 0.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal("spot-high"))

		got, err = store.ListSpots(ctx, storage.SpotFilter{Statuses: []memory.Status{memory.StatusExtracted}})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(Equal("spot-high"))
	})

	It("reports the latest extraction time", func() {
		latest, err := store.LatestSpotTime(ctx, "ses-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(BeNil())

		older := newSpot("spot-old", "communication/emoji")
		newer := newSpot("spot-new", "communication/style")
		newer.ExtractedAt = now.Add(3 * time.Hour)
		Expect(store.WriteSpots(ctx, []memory.Spot{older, newer}, nil)).To(Succeed())

		latest, err = store.LatestSpotTime(ctx, "ses-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(*latest).To(Equal(now.Add(3 * time.Hour)))
	})
})
