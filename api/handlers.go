package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/router"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleChat handles POST /v1/chat: one full conversational turn.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if strings.TrimSpace(req.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "user_id is required",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "message is required",
		})
	}

	resp, err := s.orchestrator.ProcessChatRequest(c.Context(), req)
	if err != nil {
		return s.chatError(c, err)
	}

	return c.JSON(resp)
}

// chatError maps an orchestrator failure onto a status code: no backend
// available 503, backend timeout 504, backend failure 502, anything else 500.
func (s *Server) chatError(c *fiber.Ctx, err error) error {
	s.logger.Error("chat turn failed", zap.Error(err))

	switch {
	case errors.Is(err, router.ErrNoProviderAvailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{Error: err.Error()})
	case errors.Is(err, provider.ErrBackendTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	var backendErr *provider.BackendError
	if errors.As(err, &backendErr) {
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "chat request failed"})
}
