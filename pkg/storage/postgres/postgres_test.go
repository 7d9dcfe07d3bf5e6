package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from the environment or
// skips the test.
func connStr() string {
	dsn := os.Getenv("AIDE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("AIDE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Store", func() {
	var (
		store *postgres.Store
		ctx   context.Context
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		dsn := connStr()

		var err error
		store, err = postgres.NewStore(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		db, err := sql.Open("pgx", dsn)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		for _, table := range []string{
			"identity_entries", "user_facts", "self_memories", "capabilities",
			"summaries", "session_messages", "sessions", "memory_spots",
		} {
			_, err := db.ExecContext(ctx, "DELETE FROM "+table)
			Expect(err).NotTo(HaveOccurred())
		}
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	It("upserts facts on their (fact_type, key) identity", func() {
		Expect(store.UpsertFact(ctx, memory.UserFact{
			UserID: "u1", FactType: memory.FactIdentity, Key: "name", Value: "Dana", Confidence: 0.9, UpdatedAt: now,
		})).To(Succeed())
		Expect(store.UpsertFact(ctx, memory.UserFact{
			UserID: "u1", FactType: memory.FactIdentity, Key: "name", Value: "Dana L.", Confidence: 0.95, UpdatedAt: now.Add(time.Hour),
		})).To(Succeed())

		facts, err := store.ListFacts(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Value).To(Equal("Dana L."))
	})

	It("keeps capability proficiency monotone across upserts", func() {
		Expect(store.UpsertCapability(ctx, memory.Capability{
			Name: "scheduling", Domain: "productivity", Proficiency: 7, UpdatedAt: now,
		})).To(Succeed())
		Expect(store.UpsertCapability(ctx, memory.Capability{
			Name: "scheduling", Domain: "productivity", Proficiency: 2, UpdatedAt: now.Add(time.Hour),
		})).To(Succeed())

		got, err := store.GetCapability(ctx, "scheduling", "productivity")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Proficiency).To(Equal(7))
	})

	It("assigns message seq and lists the transcript tail", func() {
		Expect(store.UpsertSession(ctx, memory.Session{ID: "ses-1", UserID: "u1", CreatedAt: now, UpdatedAt: now})).To(Succeed())
		for i := 0; i < 4; i++ {
			Expect(store.AppendMessages(ctx, "ses-1", memory.SessionMessage{
				Role: "user", Content: "m", CreatedAt: now.Add(time.Duration(i) * time.Minute),
			})).To(Succeed())
		}

		msgs, err := store.ListMessages(ctx, "ses-1", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Seq).To(Equal(3))
		Expect(msgs[1].Seq).To(Equal(4))
	})

	It("walks the spot lifecycle and applies atomically", func() {
		spot := memory.Spot{
			ID: "spot-1", SessionID: "ses-1", UserID: "u1",
			Type: memory.TypeUserFact, Key: "identity/name", Content: "The user's name is Dana",
			Confidence: 0.9, Importance: 8, Status: memory.StatusExtracted, ExtractedAt: now,
		}
		Expect(store.WriteSpots(ctx, []memory.Spot{spot}, nil)).To(Succeed())

		Expect(store.ApplySpot(ctx, storage.SpotApplication{
			SpotID:    "spot-1",
			AppliedAt: now.Add(time.Minute),
			Fact: &memory.UserFact{
				UserID: "u1", FactType: memory.FactIdentity, Key: "name",
				Value: "Dana", Confidence: 0.9, UpdatedAt: now.Add(time.Minute),
			},
		})).To(Succeed())

		got, err := store.GetSpot(ctx, "spot-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(memory.StatusApplied))

		err = store.UpdateSpotStatus(ctx, "spot-1", memory.StatusReviewed, now)
		var te *storage.TransitionError
		Expect(errors.As(err, &te)).To(BeTrue())

		final, err := store.SessionFinalized(ctx, "ses-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(final).To(BeTrue())
	})
})
