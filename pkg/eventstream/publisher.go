package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	PublishApplied(ctx context.Context, event *MemoryAppliedEvent) error
	Close() error
}
