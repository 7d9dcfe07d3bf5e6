package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

var (
	memorySpotsToolName    = "memory_spots"
	memorySpotsDescription = "List the candidate memories (spots) the extraction pipeline has proposed for a user, optionally filtered by lifecycle status. Use this to inspect what aide is about to learn before it is applied."
)

// MemorySpotsInput represents the input arguments for the MCP memory_spots tool.
type MemorySpotsInput struct {
	UserID string `json:"user_id" jsonschema:"the user whose candidate memories to list"`
	Status string `json:"status,omitempty" jsonschema:"optional lifecycle filter: extracted, reviewed, applied, or rejected"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of spots to return"`
}

// MemorySpotsOutput represents the structured output of a spot listing.
type MemorySpotsOutput struct {
	Spots []memory.Spot `json:"spots"`
}

// handleMemorySpots processes a spot listing request via MCP.
func (s *Server) handleMemorySpots(ctx context.Context, _ *mcp.CallToolRequest, input MemorySpotsInput) (*mcp.CallToolResult, MemorySpotsOutput, error) {
	if input.UserID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "user_id is required"},
			},
		}, MemorySpotsOutput{}, nil
	}

	filter := storage.SpotFilter{
		UserID: input.UserID,
		Limit:  input.Limit,
	}
	if input.Status != "" {
		status := memory.Status(input.Status)
		if !status.Valid() {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("unknown spot status: %q", input.Status)},
				},
			}, MemorySpotsOutput{}, nil
		}
		filter.Statuses = []memory.Status{status}
	}

	spots, err := s.config.Store.ListSpots(ctx, filter)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Spot listing failed: %v", err)},
			},
		}, MemorySpotsOutput{}, nil
	}

	if spots == nil {
		spots = []memory.Spot{}
	}

	output := MemorySpotsOutput{Spots: spots}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, MemorySpotsOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
