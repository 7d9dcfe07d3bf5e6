package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/router"
)

// DefaultCallTimeout bounds a single extraction inference call when the
// caller does not supply a timeout.
const DefaultCallTimeout = 120 * time.Second

// Router picks the backend an extraction call runs on. *router.Router
// satisfies it.
type Router interface {
	Route(ctx context.Context, preferLocal bool) (*router.Decision, error)
}

// RoutedCall adapts the chat router into an LLMCallFunc, so extraction shares
// availability checks and local/cloud fallback with the chat path. model
// overrides the routed backend's default when non-empty; timeout <= 0 selects
// DefaultCallTimeout. Temperature is pinned to zero because the extraction
// prompts demand strict JSON.
func RoutedCall(r Router, model string, timeout time.Duration) LLMCallFunc {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return func(ctx context.Context, systemPrompt, userContent string) (string, error) {
		d, err := r.Route(ctx, false)
		if err != nil {
			return "", err
		}

		m := d.Model
		if model != "" {
			m = model
		}

		params := d.Params
		params.Temperature = llm.Float(0)

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := d.Client.Chat(callCtx, &llm.ChatRequest{
			Model: m,
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, systemPrompt),
				llm.NewTextMessage(llm.RoleUser, userContent),
			},
			Params: params,
		})
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", fmt.Errorf("backend %s returned no response", d.Client.Name())
		}

		return resp.Content, nil
	}
}
