// Package chat runs one conversational turn end to end: assemble the prompt,
// pick a backend, call it, post-process the reply, persist the turn. The
// chain is synchronous per request; memory extraction happens out of band.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/router"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/utils"
)

const (
	// DefaultTimeout bounds a single backend inference call.
	DefaultTimeout = 120 * time.Second

	// sessionTitleMax caps the session title derived from the opening
	// message.
	sessionTitleMax = 80
)

// Request is one inbound chat turn from a channel adapter.
type Request struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`

	// SessionID continues an existing session; empty mints a new one.
	SessionID string `json:"session_id,omitempty"`

	// SystemPromptOverride replaces the assembled system prompt verbatim.
	SystemPromptOverride string `json:"system_prompt_override,omitempty"`

	// PreferLocal asks the router for the local backend when it is up.
	PreferLocal bool `json:"prefer_local,omitempty"`
}

// Response is the normalized result of a chat turn.
type Response struct {
	Content   string     `json:"content"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	SessionID string     `json:"session_id"`
	Usage     *llm.Usage `json:"usage,omitempty"`
}

// Assembler builds the ordered message list for a turn.
type Assembler interface {
	Assemble(ctx context.Context, userID, message, sessionID, override string) ([]llm.Message, error)
}

// Router picks the backend that serves a turn.
type Router interface {
	Route(ctx context.Context, preferLocal bool) (*router.Decision, error)
}

// Orchestrator is the top-level entry point for chat turns.
type Orchestrator struct {
	assembler  Assembler
	router     Router
	store      storage.Store
	processors []ResponseProcessor
	timeout    time.Duration
	log        *zap.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators. processors
// may be empty; timeout <= 0 selects DefaultTimeout.
func NewOrchestrator(a Assembler, r Router, store storage.Store, processors []ResponseProcessor, timeout time.Duration, log *zap.Logger) (*Orchestrator, error) {
	if a == nil {
		return nil, errors.New("orchestrator requires an assembler")
	}
	if r == nil {
		return nil, errors.New("orchestrator requires a router")
	}
	if store == nil {
		return nil, errors.New("orchestrator requires a store")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		assembler:  a,
		router:     r,
		store:      store,
		processors: processors,
		timeout:    timeout,
		log:        log,
	}, nil
}

// ProcessChatRequest serves one turn. Backend and routing failures surface
// as errors; processor and persistence failures are logged and the reply is
// still returned.
func (o *Orchestrator) ProcessChatRequest(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "ses-" + uuid.NewString()
	}

	msgs, err := o.assembler.Assemble(ctx, req.UserID, req.Message, sessionID, req.SystemPromptOverride)
	if err != nil {
		return nil, fmt.Errorf("assembling prompt: %w", err)
	}

	decision, err := o.router.Route(ctx, req.PreferLocal)
	if err != nil {
		return nil, err
	}

	resp, err := o.callBackend(ctx, decision, msgs)
	if err != nil {
		return nil, err
	}

	text := resp.Content
	for _, proc := range o.processors {
		out, perr := proc.Process(ctx, text)
		if perr != nil {
			o.log.Warn("response processor failed",
				zap.String("processor", proc.Name()),
				zap.Error(perr),
			)
			continue
		}
		text = out
	}

	o.persistTurn(ctx, req.UserID, sessionID, req.Message, text)

	model := resp.Model
	if model == "" {
		model = decision.Model
	}

	return &Response{
		Content:   text,
		Provider:  decision.Client.Name(),
		Model:     model,
		SessionID: sessionID,
		Usage:     resp.Usage,
	}, nil
}

// callBackend invokes the routed client under the configured timeout. A
// deadline hit surfaces as ErrBackendTimeout, anything else as a
// BackendError; an empty reply is an error too, never silent.
func (o *Orchestrator) callBackend(ctx context.Context, d *router.Decision, msgs []llm.Message) (*llm.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := d.Client.Chat(callCtx, &llm.ChatRequest{
		Model:    d.Model,
		Messages: msgs,
		Params:   d.Params,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, provider.ErrBackendTimeout) {
			return nil, fmt.Errorf("%w: %s", provider.ErrBackendTimeout, d.Client.Name())
		}
		var be *provider.BackendError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, &provider.BackendError{
			Provider: d.Client.Name(),
			Message:  err.Error(),
			Err:      err,
		}
	}

	if resp == nil || resp.Content == "" {
		return nil, &provider.BackendError{
			Provider: d.Client.Name(),
			Message:  "backend returned empty content",
		}
	}

	return resp, nil
}

// persistTurn writes the session (titled from the opening message on first
// write) and both transcript messages. Failures are logged, never returned:
// the user gets their reply even when the store is down.
func (o *Orchestrator) persistTurn(ctx context.Context, userID, sessionID, userMsg, reply string) {
	now := time.Now().UTC()

	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		if !storage.IsNotFound(err) {
			o.log.Warn("looking up session", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		s := memory.Session{
			ID:        sessionID,
			UserID:    userID,
			Title:     utils.FirstLine(userMsg, sessionTitleMax),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := o.store.UpsertSession(ctx, s); err != nil {
			o.log.Warn("creating session", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
	}

	err := o.store.AppendMessages(ctx, sessionID,
		memory.SessionMessage{SessionID: sessionID, Role: llm.RoleUser, Content: userMsg, CreatedAt: now},
		memory.SessionMessage{SessionID: sessionID, Role: llm.RoleAssistant, Content: reply, CreatedAt: now},
	)
	if err != nil {
		o.log.Warn("persisting chat turn", zap.String("session_id", sessionID), zap.Error(err))
	}
}
