package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/extraction"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

// Server is the API server for the aide assistant.
type Server struct {
	config       Config
	store        storage.Store
	orchestrator *chat.Orchestrator
	extractor    *extraction.Extractor
	pool         *extraction.Pool
	memories     *memory.Manager
	logger       *zap.Logger
	app          *fiber.App
}

// NewServer creates a new API server. The store and pipeline components are
// injected to allow sharing with other entry points (the CLI runs the same
// extractor synchronously). pool may be nil, which disables the async extract
// path; mcpHandler may be nil, which leaves /mcp unmounted.
func NewServer(config Config, store storage.Store, orchestrator *chat.Orchestrator, extractor *extraction.Extractor, pool *extraction.Pool, memories *memory.Manager, mcpHandler http.Handler, logger *zap.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("storage store is required")
	}
	if orchestrator == nil {
		return nil, errors.New("chat orchestrator is required")
	}
	if extractor == nil {
		return nil, errors.New("memory extractor is required")
	}
	if memories == nil {
		return nil, errors.New("memory manager is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		store:        store,
		orchestrator: orchestrator,
		extractor:    extractor,
		pool:         pool,
		memories:     memories,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/chat", s.handleChat)
	app.Get("/v1/memory/:userID", s.handleMemoryLayers)
	app.Get("/v1/memory/:userID/prompt", s.handleMemoryPrompt)
	app.Post("/v1/memory/extract", s.handleExtract)
	app.Post("/v1/memory/revise", s.handleRevise)
	app.Get("/v1/spots/:userID", s.handleListSpots)
	app.Post("/v1/spots/auto-apply", s.handleAutoApply)
	app.Post("/v1/spots/:id/apply", s.handleApplySpot)
	app.Post("/v1/spots/:id/reject", s.handleRejectSpot)
	app.Get("/v1/sessions/:id", s.handleGetSession)

	if mcpHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
