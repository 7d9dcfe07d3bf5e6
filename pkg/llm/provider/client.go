// Package provider defines the client contract the router dispatches chat
// turns through, one implementation per supported inference backend.
package provider

import (
	"context"

	"github.com/lodestarhq/aide/pkg/llm"
)

// Client is one inference backend. Chat runs a full non-streaming turn;
// Ping is the cheap reachability probe the router's availability cache
// consults.
type Client interface {
	// Name returns the canonical backend name (e.g., "ollama", "anthropic").
	Name() string

	// Chat sends the assembled messages and returns the reply. Deadline
	// expiry surfaces as ErrBackendTimeout, every other failure as a
	// *BackendError.
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// Ping reports whether the backend is reachable right now.
	Ping(ctx context.Context) error
}

// Config carries the connection settings shared by the backend clients.
type Config struct {
	// BaseURL overrides the backend's default endpoint.
	BaseURL string
	// APIKey authenticates cloud backends. Local backends ignore it.
	APIKey string
}
