// Package mcp provides an MCP (Model Context Protocol) server exposing aide's
// memory to external agent tooling.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/utils"
)

type Config struct {
	// Memories renders the layered memory for the recall tool
	Memories *memory.Manager

	// Store lists candidate spots for the spots tool
	Store storage.Store

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "aide",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Memories == nil {
		return nil, errors.New("memory manager is required")
	}
	if c.Store == nil {
		return nil, errors.New("storage store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memoryRecallToolName,
		Description: memoryRecallDescription,
	}, s.handleMemoryRecall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memorySpotsToolName,
		Description: memorySpotsDescription,
	}, s.handleMemorySpots)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server, or nil for a noop
// server so callers can skip mounting it.
func (s *Server) Handler() http.Handler {
	if s.handler == nil {
		return nil
	}
	return s.handler
}
