package chat_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/router"
	"github.com/lodestarhq/aide/pkg/storage/inmemory"
)

// stubAssembler returns a fixed system prompt plus the user message.
type stubAssembler struct {
	err   error
	calls int
}

func (a *stubAssembler) Assemble(_ context.Context, _, message, _, override string) ([]llm.Message, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	system := "you are a test assistant"
	if override != "" {
		system = override
	}
	return []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, system),
		llm.NewTextMessage(llm.RoleUser, message),
	}, nil
}

// stubBackend is a provider.Client with a scripted reply.
type stubBackend struct {
	name    string
	reply   string
	model   string
	err     error
	lastReq *llm.ChatRequest
}

func (c *stubBackend) Name() string { return c.name }

func (c *stubBackend) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	model := c.model
	if model == "" {
		model = req.Model
	}
	return &llm.ChatResponse{
		Content: c.reply,
		Model:   model,
		Usage:   &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (c *stubBackend) Ping(_ context.Context) error { return nil }

// stubRouter routes every request to one backend.
type stubRouter struct {
	decision *router.Decision
	err      error
}

func (r *stubRouter) Route(_ context.Context, _ bool) (*router.Decision, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.decision, nil
}

// switchingRouter honors preferLocal, so tests can drive both backends.
type switchingRouter struct {
	local *router.Decision
	cloud *router.Decision
}

func (r *switchingRouter) Route(_ context.Context, preferLocal bool) (*router.Decision, error) {
	if preferLocal {
		return r.local, nil
	}
	return r.cloud, nil
}

// failingProcessor always errors.
type failingProcessor struct{}

func (failingProcessor) Name() string { return "failing" }
func (failingProcessor) Process(_ context.Context, _ string) (string, error) {
	return "", errors.New("processor exploded")
}

// upcaseProcessor uppercases the reply.
type upcaseProcessor struct{}

func (upcaseProcessor) Name() string { return "upcase" }
func (upcaseProcessor) Process(_ context.Context, reply string) (string, error) {
	return strings.ToUpper(reply), nil
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		assembler *stubAssembler
		backend   *stubBackend
		rt        *stubRouter
		store     *inmemory.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		assembler = &stubAssembler{}
		backend = &stubBackend{name: "ollama", reply: "hello there"}
		rt = &stubRouter{decision: &router.Decision{
			Kind:   router.KindLocal,
			Client: backend,
			Model:  "llama3.2",
			Params: llm.Params{Temperature: llm.Float(0.7)},
		}}
		store = inmemory.NewStore()
		DeferCleanup(store.Close)
	})

	newOrchestrator := func(procs ...chat.ResponseProcessor) *chat.Orchestrator {
		o, err := chat.NewOrchestrator(assembler, rt, store, procs, time.Minute, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return o
	}

	It("serves a turn end to end", func() {
		o := newOrchestrator()

		resp, err := o.ProcessChatRequest(ctx, chat.Request{
			UserID:  "u1",
			Message: "hi",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(Equal("hello there"))
		Expect(resp.Provider).To(Equal("ollama"))
		Expect(resp.Model).To(Equal("llama3.2"))
		Expect(resp.SessionID).To(HavePrefix("ses-"))
		Expect(resp.Usage).NotTo(BeNil())
		Expect(resp.Usage.TotalTokens).To(Equal(15))
	})

	It("passes the routed model and params to the backend", func() {
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.lastReq).NotTo(BeNil())
		Expect(backend.lastReq.Model).To(Equal("llama3.2"))
		Expect(backend.lastReq.Params.Temperature).To(HaveValue(BeNumerically("~", 0.7)))
	})

	It("assembles the same messages no matter which backend is routed", func() {
		local := &stubBackend{name: "ollama", reply: "from local"}
		cloud := &stubBackend{name: "anthropic", reply: "from cloud"}
		sw := &switchingRouter{
			local: &router.Decision{Kind: router.KindLocal, Client: local, Model: "llama3.2"},
			cloud: &router.Decision{Kind: router.KindCloud, Client: cloud, Model: "claude-3-5-sonnet-latest"},
		}
		o, err := chat.NewOrchestrator(assembler, sw, store, nil, time.Minute, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		req := chat.Request{UserID: "u1", Message: "hi", SessionID: "ses-fixed"}

		req.PreferLocal = true
		_, err = o.ProcessChatRequest(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		req.PreferLocal = false
		_, err = o.ProcessChatRequest(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		Expect(local.lastReq).NotTo(BeNil())
		Expect(cloud.lastReq).NotTo(BeNil())
		Expect(cloud.lastReq.Messages).To(Equal(local.lastReq.Messages))
	})

	It("requires a user id and a message", func() {
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{Message: "hi"})
		Expect(err).To(MatchError(ContainSubstring("user id")))

		_, err = o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "   "})
		Expect(err).To(MatchError(ContainSubstring("message")))
	})

	It("keeps the caller's session id when given", func() {
		o := newOrchestrator()

		resp, err := o.ProcessChatRequest(ctx, chat.Request{
			UserID:    "u1",
			Message:   "hi",
			SessionID: "ses-existing",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.SessionID).To(Equal("ses-existing"))
	})

	It("persists the turn with a session titled from the opening message", func() {
		o := newOrchestrator()

		resp, err := o.ProcessChatRequest(ctx, chat.Request{
			UserID:  "u1",
			Message: "Plan my week\nand keep it light",
		})
		Expect(err).NotTo(HaveOccurred())

		s, err := store.GetSession(ctx, resp.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.UserID).To(Equal("u1"))
		Expect(s.Title).To(Equal("Plan my week"))

		msgs, err := store.ListMessages(ctx, resp.SessionID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(llm.RoleUser))
		Expect(msgs[0].Content).To(Equal("Plan my week\nand keep it light"))
		Expect(msgs[1].Role).To(Equal(llm.RoleAssistant))
		Expect(msgs[1].Content).To(Equal("hello there"))
	})

	It("appends to an existing session without retitling it", func() {
		o := newOrchestrator()

		first, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "first topic"})
		Expect(err).NotTo(HaveOccurred())

		_, err = o.ProcessChatRequest(ctx, chat.Request{
			UserID:    "u1",
			Message:   "second topic",
			SessionID: first.SessionID,
		})
		Expect(err).NotTo(HaveOccurred())

		s, err := store.GetSession(ctx, first.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Title).To(Equal("first topic"))

		msgs, err := store.ListMessages(ctx, first.SessionID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(4))
	})

	It("runs processors in order over the reply", func() {
		backend.reply = "send [SEND_MESSAGE:sam|on my way] done"
		o := newOrchestrator(
			chat.NewSendMessageResolver(chat.NewNopMessenger(zap.NewNop()), zap.NewNop()),
			upcaseProcessor{},
		)

		resp, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(Equal(strings.ToUpper("send I've sent your message to sam. done")))
	})

	It("keeps the prior text when a processor fails", func() {
		o := newOrchestrator(failingProcessor{}, upcaseProcessor{})

		resp, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(Equal("HELLO THERE"))
	})

	It("surfaces routing failures", func() {
		rt.err = router.ErrNoProviderAvailable
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).To(MatchError(router.ErrNoProviderAvailable))
	})

	It("surfaces assembly failures", func() {
		assembler.err = errors.New("memory store down")
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).To(MatchError(ContainSubstring("assembling prompt")))
	})

	It("maps a deadline hit to ErrBackendTimeout", func() {
		backend.err = context.DeadlineExceeded
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		Expect(err).To(MatchError(provider.ErrBackendTimeout))
	})

	It("passes typed backend errors through unchanged", func() {
		backend.err = &provider.BackendError{Provider: "ollama", StatusCode: 503, Message: "overloaded"}
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		var be *provider.BackendError
		Expect(errors.As(err, &be)).To(BeTrue())
		Expect(be.StatusCode).To(Equal(503))
	})

	It("wraps untyped backend failures in a BackendError", func() {
		backend.err = errors.New("connection refused")
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		var be *provider.BackendError
		Expect(errors.As(err, &be)).To(BeTrue())
		Expect(be.Provider).To(Equal("ollama"))
	})

	It("rejects an empty backend reply instead of returning it", func() {
		backend.reply = ""
		o := newOrchestrator()

		_, err := o.ProcessChatRequest(ctx, chat.Request{UserID: "u1", Message: "hi"})
		var be *provider.BackendError
		Expect(errors.As(err, &be)).To(BeTrue())
		Expect(be.Message).To(ContainSubstring("empty content"))
	})

	It("requires its collaborators at construction", func() {
		_, err := chat.NewOrchestrator(nil, rt, store, nil, 0, zap.NewNop())
		Expect(err).To(HaveOccurred())

		_, err = chat.NewOrchestrator(assembler, nil, store, nil, 0, zap.NewNop())
		Expect(err).To(HaveOccurred())

		_, err = chat.NewOrchestrator(assembler, rt, nil, nil, 0, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})
})
