package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// ApplyResponse reports a single spot apply.
type ApplyResponse struct {
	Applied bool   `json:"applied"`
	Message string `json:"message,omitempty"`
}

// AutoApplyRequest is the body of POST /v1/spots/auto-apply. The body is
// optional; a zero threshold uses the extractor's default confidence floor.
type AutoApplyRequest struct {
	Threshold float64 `json:"threshold,omitempty"`
}

// AutoApplyResponse reports an auto-apply sweep.
type AutoApplyResponse struct {
	Applied int      `json:"applied"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// handleListSpots handles GET /v1/spots/:userID. Optional status and limit
// queries narrow the result.
func (s *Server) handleListSpots(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "userID parameter is required",
		})
	}

	filter := storage.SpotFilter{UserID: userID}

	if status := c.Query("status"); status != "" {
		st := memory.Status(status)
		if !st.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "unknown spot status: " + status,
			})
		}
		filter.Statuses = []memory.Status{st}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "limit must be a non-negative integer",
			})
		}
		filter.Limit = limit
	}

	spots, err := s.store.ListSpots(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to list spots",
		})
	}

	return c.JSON(map[string]any{
		"count": len(spots),
		"spots": spots,
	})
}

// handleApplySpot handles POST /v1/spots/:id/apply: promote one candidate
// into its canonical memory layer. Lifecycle no-ops come back as 409.
func (s *Server) handleApplySpot(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "id parameter is required",
		})
	}

	applied, msg, err := s.extractor.Apply(c.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{
				Error: "spot not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to apply spot",
		})
	}
	if !applied {
		return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: msg})
	}

	return c.JSON(ApplyResponse{Applied: true, Message: msg})
}

// handleRejectSpot handles POST /v1/spots/:id/reject: close a candidate
// without promoting it.
func (s *Server) handleRejectSpot(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "id parameter is required",
		})
	}

	if err := s.extractor.Reject(c.Context(), id); err != nil {
		if storage.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{
				Error: "spot not found",
			})
		}
		var transitionErr *storage.TransitionError
		if errors.As(err, &transitionErr) {
			return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "failed to reject spot",
		})
	}

	return c.JSON(map[string]any{"status": string(memory.StatusRejected)})
}

// handleAutoApply handles POST /v1/spots/auto-apply: promote every extracted
// spot that clears the confidence threshold. The body is optional.
func (s *Server) handleAutoApply(c *fiber.Ctx) error {
	var req AutoApplyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "invalid request body",
			})
		}
	}

	result, err := s.extractor.AutoApply(c.Context(), req.Threshold)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "auto-apply sweep failed",
		})
	}

	return c.JSON(AutoApplyResponse{
		Applied: result.Applied,
		Skipped: result.Skipped,
		Errors:  errorStrings(result.Errors),
	})
}
