package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lodestarhq/aide/pkg/extraction"
	"github.com/lodestarhq/aide/pkg/llm"
)

// ExtractRequest is the body of POST /v1/memory/extract.
type ExtractRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// MaxMessages bounds how much of the transcript the pass reads; zero
	// uses the extractor's configured window.
	MaxMessages int `json:"max_messages,omitempty"`

	// Async queues the pass on the worker pool instead of running it in
	// the request.
	Async bool `json:"async,omitempty"`
}

// ExtractResponse reports a synchronous extraction pass.
type ExtractResponse struct {
	SpotsWritten int      `json:"spots_written"`
	Errors       []string `json:"errors,omitempty"`
}

// ReviseRequest is the body of POST /v1/memory/revise. All fields are
// optional; zero values select the sweep defaults.
type ReviseRequest struct {
	Limit    int `json:"limit,omitempty"`
	DaysBack int `json:"days_back,omitempty"`
}

// ReviseResponse reports a revision sweep over recent sessions.
type ReviseResponse struct {
	Examined     int      `json:"examined"`
	Revised      int      `json:"revised"`
	Skipped      int      `json:"skipped"`
	SpotsWritten int      `json:"spots_written"`
	Errors       []string `json:"errors,omitempty"`
}

// handleMemoryLayers handles GET /v1/memory/:userID. An optional session_id
// query scopes the working and episodic layers to that session.
func (s *Server) handleMemoryLayers(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "userID parameter is required",
		})
	}

	layers, err := s.memories.AllLayers(c.Context(), userID, c.Query("session_id"), "")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to read memory layers",
		})
	}

	return c.JSON(layers)
}

// handleMemoryPrompt handles GET /v1/memory/:userID/prompt: the user's memory
// rendered exactly as the prompt assembler would inject it.
func (s *Server) handleMemoryPrompt(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "userID parameter is required",
		})
	}

	text, err := s.memories.FormatForPrompt(c.Context(), userID, c.Query("session_id"), "")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to format memory",
		})
	}

	return c.JSON(map[string]any{"prompt": text})
}

// handleExtract handles POST /v1/memory/extract. Synchronous by default;
// async requests are queued on the worker pool and acknowledged with 202.
func (s *Server) handleExtract(c *fiber.Ctx) error {
	var req ExtractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "session_id is required",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "user_id is required",
		})
	}

	if req.Async {
		if s.pool == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{
				Error: "extraction pool is not running",
			})
		}
		queued := s.pool.Enqueue(extraction.Job{
			Kind:        extraction.JobExtract,
			SessionID:   req.SessionID,
			UserID:      req.UserID,
			MaxMessages: req.MaxMessages,
		})
		if !queued {
			return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{
				Error: "extraction queue is full",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(map[string]any{"status": "queued"})
	}

	written, errs := s.extractor.Extract(c.Context(), req.SessionID, req.UserID, req.MaxMessages, false)

	return c.JSON(ExtractResponse{
		SpotsWritten: written,
		Errors:       errorStrings(errs),
	})
}

// handleRevise handles POST /v1/memory/revise: a revision sweep over recent
// sessions. The body is optional.
func (s *Server) handleRevise(c *fiber.Ctx) error {
	var req ReviseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "invalid request body",
			})
		}
	}

	result, err := s.extractor.ReviseMany(c.Context(), req.Limit, req.DaysBack)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "revision sweep failed",
		})
	}

	return c.JSON(ReviseResponse{
		Examined:     result.Examined,
		Revised:      result.Revised,
		Skipped:      result.Skipped,
		SpotsWritten: result.SpotsWritten,
		Errors:       errorStrings(result.Errors),
	})
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
