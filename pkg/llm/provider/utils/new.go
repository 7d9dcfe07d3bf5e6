// Package utils constructs backend clients from configuration values.
package utils

import (
	"fmt"
	"os"

	"github.com/lodestarhq/aide/pkg/credentials"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/provider/anthropic"
	"github.com/lodestarhq/aide/pkg/llm/provider/ollama"
	"github.com/lodestarhq/aide/pkg/llm/provider/openai"
)

// NewClientOpts configures NewClient.
type NewClientOpts struct {
	// Kind selects the backend, one of provider.SupportedClients().
	// Empty defaults to ollama, the local backend.
	Kind string

	// BaseURL overrides the backend's default endpoint.
	BaseURL string

	// APIKey wins over every other key source when set.
	APIKey string

	// Credentials resolves stored keys when APIKey is empty. Optional.
	Credentials *credentials.Manager
}

// NewClient constructs the backend client named by o.Kind. API keys for
// cloud backends resolve explicit > stored credentials > environment,
// matching the auth command's storage order.
func NewClient(o *NewClientOpts) (provider.Client, error) {
	if o == nil {
		o = &NewClientOpts{}
	}
	cfg := provider.Config{BaseURL: o.BaseURL}

	switch o.Kind {
	case provider.Ollama, "":
		return ollama.New(cfg), nil
	case provider.OpenAI:
		cfg.APIKey = resolveKey(o, provider.OpenAI)
		return openai.New(cfg), nil
	case provider.Anthropic:
		cfg.APIKey = resolveKey(o, provider.Anthropic)
		return anthropic.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: %v)", o.Kind, provider.SupportedClients())
	}
}

func resolveKey(o *NewClientOpts, name string) string {
	if o.APIKey != "" {
		return o.APIKey
	}
	if o.Credentials != nil {
		if key, err := o.Credentials.GetKey(name); err == nil && key != "" {
			return key
		}
	}
	return os.Getenv(credentials.EnvVarForProvider(name))
}
