package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	memoryRecallToolName    = "memory_recall"
	memoryRecallDescription = "Recall everything aide remembers about a user, rendered as prompt-ready text: identity traits, known facts, current context, and recent conversation summaries. Use this to ground a reply in persistent knowledge about the user."
)

// MemoryRecallInput represents the input arguments for the MCP memory_recall tool.
type MemoryRecallInput struct {
	UserID    string `json:"user_id" jsonschema:"the user whose memory to recall"`
	SessionID string `json:"session_id,omitempty" jsonschema:"optional session to scope the current-context section to"`
}

// MemoryRecallOutput represents the structured output of a memory recall.
type MemoryRecallOutput struct {
	Memory string `json:"memory"`
}

// handleMemoryRecall processes a memory recall request via MCP.
func (s *Server) handleMemoryRecall(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRecallInput) (*mcp.CallToolResult, MemoryRecallOutput, error) {
	if input.UserID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "user_id is required"},
			},
		}, MemoryRecallOutput{}, nil
	}

	text, err := s.config.Memories.FormatForPrompt(ctx, input.UserID, input.SessionID, "")
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory recall failed: %v", err)},
			},
		}, MemoryRecallOutput{}, nil
	}

	output := MemoryRecallOutput{Memory: text}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, MemoryRecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
