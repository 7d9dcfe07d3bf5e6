package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/prompt"
)

// ResponseProcessor transforms the assistant's reply text after the backend
// call. Processors run in order; when one fails the failure is logged and
// the text it received is passed to the next.
type ResponseProcessor interface {
	Name() string
	Process(ctx context.Context, reply string) (string, error)
}

// Messenger delivers a message to one of the user's contacts. Channel
// adapters (Telegram, email, ...) implement this outside the backend.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) error
}

// NopMessenger logs deliveries and reports success. It stands in wherever no
// channel adapter is wired.
type NopMessenger struct {
	log *zap.Logger
}

// NewNopMessenger creates a messenger that delivers nowhere.
func NewNopMessenger(log *zap.Logger) *NopMessenger {
	if log == nil {
		log = zap.NewNop()
	}
	return &NopMessenger{log: log}
}

func (m *NopMessenger) Send(_ context.Context, recipient, text string) error {
	m.log.Info("dropping outbound message, no channel adapter configured",
		zap.String("recipient", recipient),
		zap.Int("length", len(text)),
	)
	return nil
}

// Replacement text for resolved send-message directives. The marker is
// swapped inline, so these read as assistant prose.
const (
	deliveryConfirmedFmt = "I've sent your message to %s."
	deliveryFailedFmt    = "I couldn't deliver your message to %s right now."
	deliveryMalformed    = "I couldn't send that message."
)

// SendMessageResolver resolves [SEND_MESSAGE:recipient|text] directives
// embedded in a reply. Each directive is delivered through the Messenger and
// replaced with a confirmation, or an apology when delivery fails. The text
// around the directives is always preserved.
type SendMessageResolver struct {
	messenger Messenger
	log       *zap.Logger
}

// NewSendMessageResolver wires the resolver to a messenger. A nil messenger
// falls back to the nop messenger.
func NewSendMessageResolver(m Messenger, log *zap.Logger) *SendMessageResolver {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = NewNopMessenger(log)
	}
	return &SendMessageResolver{messenger: m, log: log}
}

func (r *SendMessageResolver) Name() string {
	return "send_message_resolver"
}

// Process scans the reply for send-message directives and resolves each in
// order of appearance. Delivery failures become apology text, never errors:
// the reply must reach the user regardless.
func (r *SendMessageResolver) Process(ctx context.Context, reply string) (string, error) {
	if !strings.Contains(reply, prompt.ActionMarkerToken) {
		return reply, nil
	}

	var b strings.Builder
	rest := reply
	for {
		i := strings.Index(rest, prompt.ActionMarkerToken)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])

		after := rest[i:]
		end := strings.IndexByte(after, ']')
		if end < 0 {
			// Unterminated directive, keep it verbatim.
			b.WriteString(after)
			break
		}

		inner := after[len(prompt.ActionMarkerToken):end]
		b.WriteString(r.resolve(ctx, inner))
		rest = after[end+1:]
	}

	return b.String(), nil
}

func (r *SendMessageResolver) resolve(ctx context.Context, directive string) string {
	recipient, text, ok := strings.Cut(directive, "|")
	recipient = strings.TrimSpace(recipient)
	if !ok || recipient == "" {
		r.log.Warn("malformed send-message directive", zap.String("directive", directive))
		return deliveryMalformed
	}

	if err := r.messenger.Send(ctx, recipient, strings.TrimSpace(text)); err != nil {
		r.log.Warn("outbound message delivery failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return fmt.Sprintf(deliveryFailedFmt, recipient)
	}

	return fmt.Sprintf(deliveryConfirmedFmt, recipient)
}
