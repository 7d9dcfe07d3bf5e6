// Package ollama implements the provider.Client contract against a local
// Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
)

// DefaultBaseURL is Ollama's standard local endpoint.
const DefaultBaseURL = "http://localhost:11434"

// Client calls an Ollama server's chat API. Deadlines come from the caller's
// context; the client sets none of its own.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client against cfg.BaseURL, defaulting to DefaultBaseURL.
func New(cfg provider.Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{},
	}
}

func (c *Client) Name() string {
	return provider.Ollama
}

// Chat posts the request to /api/chat with streaming disabled.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	stream := false
	body := chatRequest{
		Model:  req.Model,
		Stream: &stream,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if opts := toOptions(req.Params); opts != nil {
		body.Options = opts
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("ollama chat: %w", provider.ErrBackendTimeout)
		}
		return nil, &provider.BackendError{Provider: provider.Ollama, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.BackendError{Provider: provider.Ollama, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &provider.BackendError{
			Provider:   provider.Ollama,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &provider.BackendError{Provider: provider.Ollama, Message: "unparseable response: " + err.Error(), Err: err}
	}

	return &llm.ChatResponse{
		Content:    out.Message.Content,
		Model:      out.Model,
		CreatedAt:  out.CreatedAt,
		StopReason: out.DoneReason,
		Usage:      usageOf(out),
	}, nil
}

// Ping hits /api/tags, the cheapest endpoint an Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("building ollama ping: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinging ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping returned %d", resp.StatusCode)
	}
	return nil
}

func toOptions(p llm.Params) *chatOptions {
	if p.Temperature == nil && p.TopP == nil && p.Seed == nil && p.MaxTokens == nil && len(p.Stop) == 0 {
		return nil
	}
	return &chatOptions{
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Seed:        p.Seed,
		NumPredict:  p.MaxTokens,
		Stop:        p.Stop,
	}
}

func usageOf(r chatResponse) *llm.Usage {
	if r.PromptEvalCount == 0 && r.EvalCount == 0 {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
