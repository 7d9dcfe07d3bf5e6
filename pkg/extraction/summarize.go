package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/memory"
)

// Summarize refreshes a session's episodic summary with one LLM call. The
// summary is overwritten wholesale; the episodic layer never accumulates
// raw transcript.
func (e *Extractor) Summarize(ctx context.Context, sessionID, userID string) error {
	msgs, err := e.store.ListMessages(ctx, sessionID, e.opts.MaxMessages)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	if len(msgs) < 2 {
		return ErrSessionTooShort
	}

	raw, err := e.llm(ctx, SummarySystemPrompt, buildTranscript(msgs))
	if err != nil {
		return fmt.Errorf("summary llm call: %w", err)
	}

	reply, err := parseSummaryReply(raw)
	if err != nil {
		return err
	}

	summary := memory.ConversationSummary{
		UserID:      userID,
		SessionID:   sessionID,
		Summary:     reply.Summary,
		Tone:        reply.Tone,
		Topics:      reply.Topics,
		OpenThreads: reply.OpenThreads,
		UpdatedAt:   e.opts.Clock(),
	}

	if err := e.store.UpsertSummary(ctx, summary); err != nil {
		return fmt.Errorf("writing session summary: %w", err)
	}

	e.log.Debug("session summarized",
		zap.String("session_id", sessionID),
		zap.Strings("topics", reply.Topics),
	)

	return nil
}
