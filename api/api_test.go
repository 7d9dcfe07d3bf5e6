package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/router"
)

var _ = Describe("NewServer", func() {
	It("creates a server with valid dependencies", func() {
		deps := newTestServer(false)
		Expect(deps.server).NotTo(BeNil())
	})

	It("returns an error when the store is nil", func() {
		deps := newTestServer(false)
		_, err := NewServer(Config{ListenAddr: ":0"}, nil, deps.orchestrator, deps.extractor, nil, deps.memories, nil, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("store is required"))
	})

	It("returns an error when the orchestrator is nil", func() {
		deps := newTestServer(false)
		_, err := NewServer(Config{ListenAddr: ":0"}, deps.store, nil, deps.extractor, nil, deps.memories, nil, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("orchestrator is required"))
	})

	It("returns an error when the extractor is nil", func() {
		deps := newTestServer(false)
		_, err := NewServer(Config{ListenAddr: ":0"}, deps.store, deps.orchestrator, nil, nil, deps.memories, nil, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("extractor is required"))
	})

	It("returns an error when the memory manager is nil", func() {
		deps := newTestServer(false)
		_, err := NewServer(Config{ListenAddr: ":0"}, deps.store, deps.orchestrator, deps.extractor, nil, nil, nil, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("memory manager is required"))
	})

	It("returns an error when the logger is nil", func() {
		deps := newTestServer(false)
		_, err := NewServer(Config{ListenAddr: ":0"}, deps.store, deps.orchestrator, deps.extractor, nil, deps.memories, nil, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("logger is required"))
	})

	It("mounts the MCP handler when one is provided", func() {
		deps := newTestServer(false)
		mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		server, err := NewServer(Config{ListenAddr: ":0"}, deps.store, deps.orchestrator, deps.extractor, nil, deps.memories, mcpHandler, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(jsonRequest(http.MethodPost, "/mcp", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
	})

	It("leaves /mcp unmounted when no handler is provided", func() {
		deps := newTestServer(false)

		resp, err := deps.server.app.Test(jsonRequest(http.MethodPost, "/mcp", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
	})
})

var _ = Describe("GET /ping", func() {
	It("returns pong", func() {
		deps := newTestServer(false)

		resp, err := deps.server.app.Test(jsonRequest(http.MethodGet, "/ping", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("pong"))
	})
})

var _ = Describe("POST /v1/chat", func() {
	var deps *testDeps

	BeforeEach(func() {
		deps = newTestServer(false)
	})

	It("runs a chat turn and returns the reply", func() {
		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{
			UserID:  "usr-1",
			Message: "hello",
		})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var out chat.Response
		decodeJSON(resp, &out)
		Expect(out.Content).To(Equal("hello from the stub"))
		Expect(out.Provider).To(Equal("ollama"))
		Expect(out.Model).To(Equal("llama3.2"))
		Expect(out.SessionID).NotTo(BeEmpty())
		Expect(out.Usage).NotTo(BeNil())
		Expect(out.Usage.TotalTokens).To(Equal(15))
	})

	It("persists the turn under the returned session", func() {
		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{
			UserID:  "usr-1",
			Message: "remember this",
		})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		var out chat.Response
		decodeJSON(resp, &out)

		msgs, err := deps.store.ListMessages(context.Background(), out.SessionID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("remember this"))
		Expect(msgs[1].Content).To(Equal("hello from the stub"))
	})

	It("continues an existing session when session_id is given", func() {
		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{
			UserID:    "usr-1",
			Message:   "again",
			SessionID: "ses-existing",
		})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		var out chat.Response
		decodeJSON(resp, &out)
		Expect(out.SessionID).To(Equal("ses-existing"))
	})

	It("returns 400 for a malformed body", func() {
		req, err := http.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte("{not json")))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("returns 400 when user_id is missing", func() {
		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{Message: "hello"})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("user_id is required"))
	})

	It("returns 400 when message is missing", func() {
		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{UserID: "usr-1"})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("message is required"))
	})

	It("returns 503 when no backend is available", func() {
		deps.router.err = router.ErrNoProviderAvailable

		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{UserID: "usr-1", Message: "hello"})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
	})

	It("returns 504 when the backend times out", func() {
		deps.backend.err = provider.ErrBackendTimeout

		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{UserID: "usr-1", Message: "hello"})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusGatewayTimeout))
	})

	It("returns 502 when the backend fails", func() {
		deps.backend.err = errors.New("connection refused")

		req := jsonRequest(http.MethodPost, "/v1/chat", chat.Request{UserID: "usr-1", Message: "hello"})

		resp, err := deps.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
	})
})
