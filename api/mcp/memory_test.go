package mcp

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/calendar"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage/inmemory"
)

var _ = Describe("Memory tools", func() {
	var (
		server *Server
		store  *inmemory.Store
		ctx    context.Context
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		memories := memory.NewManager(store, calendar.Static{}, zap.NewNop())

		var err error
		server, err = NewServer(Config{
			Memories: memories,
			Store:    store,
			Logger:   zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	Describe("memory_recall", func() {
		It("requires a user_id", func() {
			result, _, err := server.handleMemoryRecall(ctx, nil, MemoryRecallInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})

		It("renders the user's memory as prompt text", func() {
			Expect(store.UpsertFact(ctx, memory.UserFact{
				UserID:   "usr-1",
				FactType: "professional",
				Key:      "employer",
				Value:    "Initech",
			})).To(Succeed())

			result, output, err := server.handleMemoryRecall(ctx, nil, MemoryRecallInput{UserID: "usr-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Memory).To(ContainSubstring("Initech"))
			Expect(output.Memory).To(ContainSubstring(memory.HeaderFacts))
		})

		It("always includes the current-context section", func() {
			_, output, err := server.handleMemoryRecall(ctx, nil, MemoryRecallInput{UserID: "usr-blank"})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Memory).To(ContainSubstring(memory.HeaderContext))
		})
	})

	Describe("memory_spots", func() {
		BeforeEach(func() {
			spot := memory.Spot{
				ID:        "spot-1",
				SessionID: "ses-1",
				UserID:    "usr-1",
				Type:      memory.TypeUserFact,
				Key:       "professional/employer",
				Content:   "works at Initech",
				Metadata: map[string]any{
					"fact_type": "professional",
					"key":       "employer",
					"value":     "Initech",
				},
				Confidence:  0.9,
				Importance:  8,
				Status:      memory.StatusExtracted,
				ExtractedAt: time.Now().UTC(),
			}
			Expect(store.WriteSpots(ctx, []memory.Spot{spot}, nil)).To(Succeed())
		})

		It("requires a user_id", func() {
			result, _, err := server.handleMemorySpots(ctx, nil, MemorySpotsInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})

		It("rejects an unknown status", func() {
			result, _, err := server.handleMemorySpots(ctx, nil, MemorySpotsInput{
				UserID: "usr-1",
				Status: "pending",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})

		It("lists a user's candidate memories", func() {
			result, output, err := server.handleMemorySpots(ctx, nil, MemorySpotsInput{UserID: "usr-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Spots).To(HaveLen(1))
			Expect(output.Spots[0].ID).To(Equal("spot-1"))
		})

		It("filters by lifecycle status", func() {
			_, output, err := server.handleMemorySpots(ctx, nil, MemorySpotsInput{
				UserID: "usr-1",
				Status: "applied",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Spots).To(BeEmpty())
		})

		It("returns an empty list rather than null for users with no spots", func() {
			_, output, err := server.handleMemorySpots(ctx, nil, MemorySpotsInput{UserID: "usr-none"})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Spots).NotTo(BeNil())
			Expect(output.Spots).To(BeEmpty())
		})
	})
})
