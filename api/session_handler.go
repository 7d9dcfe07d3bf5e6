package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// SessionResponse is the full record for one session: metadata, transcript,
// and the episodic summary when one exists.
type SessionResponse struct {
	Session  memory.Session              `json:"session"`
	Messages []memory.SessionMessage     `json:"messages"`
	Summary  *memory.ConversationSummary `json:"summary,omitempty"`
}

// handleGetSession handles GET /v1/sessions/:id.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "id parameter is required",
		})
	}

	ctx := c.Context()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{
				Error: "session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to load session",
		})
	}

	messages, err := s.store.ListMessages(ctx, id, 0)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to load session messages",
		})
	}

	resp := SessionResponse{
		Session:  *session,
		Messages: messages,
	}

	summary, err := s.store.GetSummary(ctx, id)
	switch {
	case err == nil:
		resp.Summary = summary
	case !storage.IsNotFound(err):
		s.logger.Warn("loading session summary",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}

	return c.JSON(resp)
}
