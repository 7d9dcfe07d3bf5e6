// Package testutils holds shared test doubles for the inference seams.
// Doubles a single package owns stay local to that package.
package testutils

import (
	"context"
	"sync"

	"github.com/lodestarhq/aide/pkg/llm"
)

// Backend is a provider.Client double with scripted replies.
type Backend struct {
	// BackendName is returned by Name.
	BackendName string

	// Replies are returned by Chat in order; the last one repeats.
	Replies []string

	// ChatErr causes every Chat call to fail.
	ChatErr error

	// PingErr causes Ping to fail, marking the backend unreachable.
	PingErr error

	mu       sync.Mutex
	requests []*llm.ChatRequest
}

// NewBackend creates a Backend that identifies as name and always replies
// with reply.
func NewBackend(name, reply string) *Backend {
	return &Backend{
		BackendName: name,
		Replies:     []string{reply},
	}
}

func (b *Backend) Name() string { return b.BackendName }

// Chat records the request and replays the scripted reply for this call.
func (b *Backend) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	if b.ChatErr != nil {
		return nil, b.ChatErr
	}

	if len(b.Replies) == 0 {
		return &llm.ChatResponse{Model: req.Model}, nil
	}
	i := len(b.requests) - 1
	if i >= len(b.Replies) {
		i = len(b.Replies) - 1
	}

	return &llm.ChatResponse{Content: b.Replies[i], Model: req.Model}, nil
}

func (b *Backend) Ping(_ context.Context) error { return b.PingErr }

// Requests returns a copy of every ChatRequest seen so far.
func (b *Backend) Requests() []*llm.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*llm.ChatRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// ChatCalls reports how many times Chat was invoked.
func (b *Backend) ChatCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}
