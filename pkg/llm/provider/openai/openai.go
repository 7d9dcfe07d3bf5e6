// Package openai implements the provider.Client contract against OpenAI's
// chat completions API, or any server that speaks it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
)

// DefaultBaseURL is OpenAI's public API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Client calls an OpenAI-compatible chat completions API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client from cfg. BaseURL defaults to the public OpenAI
// endpoint; override it for self-hosted compatible servers.
func New(cfg provider.Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{},
	}
}

func (c *Client) Name() string {
	return provider.OpenAI
}

// Chat posts the request to /v1/chat/completions.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Seed:        req.Seed,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("openai chat: %w", provider.ErrBackendTimeout)
		}
		return nil, &provider.BackendError{Provider: provider.OpenAI, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.BackendError{Provider: provider.OpenAI, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &provider.BackendError{
			Provider:   provider.OpenAI,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &provider.BackendError{Provider: provider.OpenAI, Message: "unparseable response: " + err.Error(), Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &provider.BackendError{Provider: provider.OpenAI, Message: "response contained no choices"}
	}

	result := &llm.ChatResponse{
		Content:    out.Choices[0].Message.Content,
		Model:      out.Model,
		StopReason: out.Choices[0].FinishReason,
	}
	if out.Created != 0 {
		result.CreatedAt = time.Unix(out.Created, 0).UTC()
	}
	if out.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Ping lists models, the lightest authenticated call the API offers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("building openai ping: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinging openai: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai ping returned %d", resp.StatusCode)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
