package extraction_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/extraction"
	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/router"
	testutils "github.com/lodestarhq/aide/pkg/utils/test"
)

var _ = Describe("RoutedCall", func() {
	var (
		ctx     context.Context
		backend *testutils.Backend
		rt      *testutils.StaticRouter
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = testutils.NewBackend("ollama", `{"facts": []}`)
		rt = &testutils.StaticRouter{Decision: &router.Decision{
			Kind:   router.KindLocal,
			Client: backend,
			Model:  "llama3.2",
			Params: llm.Params{Temperature: llm.Float(0.7), MaxTokens: llm.Int(512)},
		}}
	})

	It("routes each call and shapes the request for extraction", func() {
		call := extraction.RoutedCall(rt, "", 0)

		out, err := call(ctx, "extract facts", "transcript goes here")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal(`{"facts": []}`))
		Expect(rt.Routes).To(Equal(1))

		reqs := backend.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Model).To(Equal("llama3.2"))
		Expect(reqs[0].Messages).To(Equal([]llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "extract facts"),
			llm.NewTextMessage(llm.RoleUser, "transcript goes here"),
		}))

		// Extraction pins sampling for reproducible JSON; the rest of the
		// routed params pass through.
		Expect(reqs[0].Temperature).To(HaveValue(Equal(0.0)))
		Expect(reqs[0].MaxTokens).To(HaveValue(Equal(512)))
	})

	It("lets the configured extraction model override the routed one", func() {
		call := extraction.RoutedCall(rt, "qwen2.5:3b", 0)

		_, err := call(ctx, "extract facts", "transcript")
		Expect(err).ToNot(HaveOccurred())

		reqs := backend.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Model).To(Equal("qwen2.5:3b"))
	})

	It("surfaces routing failures", func() {
		rt.Err = router.ErrNoProviderAvailable
		call := extraction.RoutedCall(rt, "", 0)

		_, err := call(ctx, "extract facts", "transcript")
		Expect(err).To(MatchError(router.ErrNoProviderAvailable))
		Expect(backend.ChatCalls()).To(BeZero())
	})

	It("surfaces backend failures", func() {
		backend.ChatErr = errors.New("model unreachable")
		call := extraction.RoutedCall(rt, "", 0)

		_, err := call(ctx, "extract facts", "transcript")
		Expect(err).To(MatchError(ContainSubstring("model unreachable")))
	})
})
