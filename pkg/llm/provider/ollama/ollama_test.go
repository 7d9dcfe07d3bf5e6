package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/provider/ollama"
)

var _ = Describe("Ollama Client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("translates the request and maps the reply", func() {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			_, _ = w.Write([]byte(`{
				"model": "llama3.2",
				"created_at": "2025-06-01T12:00:00Z",
				"message": {"role": "assistant", "content": "hello there"},
				"done": true,
				"done_reason": "stop",
				"prompt_eval_count": 12,
				"eval_count": 5
			}`))
		}))
		defer srv.Close()

		c := ollama.New(provider.Config{BaseURL: srv.URL})
		resp, err := c.Chat(ctx, &llm.ChatRequest{
			Model: "llama3.2",
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "You are aide."),
				llm.NewTextMessage(llm.RoleUser, "hi"),
			},
			Params: llm.Params{Temperature: llm.Float(0.7), MaxTokens: llm.Int(256)},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(got["model"]).To(Equal("llama3.2"))
		Expect(got["stream"]).To(Equal(false))
		msgs := got["messages"].([]any)
		Expect(msgs).To(HaveLen(2))
		opts := got["options"].(map[string]any)
		Expect(opts["temperature"]).To(BeNumerically("~", 0.7))
		Expect(opts["num_predict"]).To(BeNumerically("==", 256))

		Expect(resp.Content).To(Equal("hello there"))
		Expect(resp.Model).To(Equal("llama3.2"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(17))
	})

	It("omits options when no params are set", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			Expect(got).NotTo(HaveKey("options"))
			_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"ok"},"done":true}`))
		}))
		defer srv.Close()

		c := ollama.New(provider.Config{BaseURL: srv.URL})
		resp, err := c.Chat(ctx, &llm.ChatRequest{Model: "m", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Usage).To(BeNil())
	})

	It("returns a BackendError with the server's message on failure", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model \"missing\" not found"}`))
		}))
		defer srv.Close()

		c := ollama.New(provider.Config{BaseURL: srv.URL})
		_, err := c.Chat(ctx, &llm.ChatRequest{Model: "missing", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})

		var be *provider.BackendError
		Expect(errors.As(err, &be)).To(BeTrue())
		Expect(be.Provider).To(Equal(provider.Ollama))
		Expect(be.StatusCode).To(Equal(http.StatusNotFound))
		Expect(be.Message).To(ContainSubstring("not found"))
	})

	It("surfaces deadline expiry as ErrBackendTimeout", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		c := ollama.New(provider.Config{BaseURL: srv.URL})
		timed, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := c.Chat(timed, &llm.ChatRequest{Model: "m", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})
		Expect(errors.Is(err, provider.ErrBackendTimeout)).To(BeTrue())
	})

	Describe("Ping", func() {
		It("succeeds against a running server", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/tags"))
				_, _ = w.Write([]byte(`{"models":[]}`))
			}))
			defer srv.Close()

			c := ollama.New(provider.Config{BaseURL: srv.URL})
			Expect(c.Ping(ctx)).To(Succeed())
		})

		It("fails when the server is down", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			srv.Close()

			c := ollama.New(provider.Config{BaseURL: srv.URL})
			Expect(c.Ping(ctx)).NotTo(Succeed())
		})
	})
})
