// Package anthropic implements the provider.Client contract on Anthropic's
// official Go SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
)

// defaultMaxTokens caps replies when the request does not set a limit; the
// messages API requires an explicit value.
const defaultMaxTokens = 1024

// Client calls the Anthropic messages API.
type Client struct {
	sdk sdk.Client
}

// New creates a Client. An empty BaseURL uses Anthropic's public endpoint;
// an empty APIKey falls back to the SDK's environment lookup.
func New(cfg provider.Config) *Client {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...)}
}

func (c *Client) Name() string {
	return provider.Anthropic
}

// Chat sends the assembled messages. A leading system message becomes the
// API's system field; the rest map onto user and assistant turns.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
	}
	if system := req.SystemPrompt(); system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	for _, m := range req.ChatMessages() {
		if m.Role == llm.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
			continue
		}
		params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, chatError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.ChatResponse{
		Content:    text.String(),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// Ping lists one model, the lightest authenticated call the API offers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.sdk.Models.List(ctx, sdk.ModelListParams{Limit: sdk.Int(1)}); err != nil {
		return fmt.Errorf("pinging anthropic: %w", err)
	}
	return nil
}

func chatError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("anthropic chat: %w", provider.ErrBackendTimeout)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &provider.BackendError{
			Provider:   provider.Anthropic,
			StatusCode: apiErr.StatusCode,
			Message:    err.Error(),
			Err:        err,
		}
	}
	return &provider.BackendError{Provider: provider.Anthropic, Message: err.Error(), Err: err}
}
