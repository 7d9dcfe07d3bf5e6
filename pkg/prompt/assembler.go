// Package prompt builds the ordered message list sent to an inference
// backend. Assembly is deterministic: identical inputs against identical
// collaborator state produce byte-identical output, regardless of which
// backend the router later picks.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/codectx"
	"github.com/lodestarhq/aide/pkg/llm"
)

// DefaultSystemPrompt is used when no prompt file is configured and no
// override is supplied.
const DefaultSystemPrompt = `You are aide, a personal assistant with a long-running memory of the person you work with.

Be direct and warm. Use what you remember about the user when it is relevant, and say when you are unsure rather than guessing. Keep replies short unless the user asks for depth.`

// ActionMarkerToken opens an embedded send-message directive in a reply.
// The orchestrator's response processors parse the directive this token
// introduces.
const ActionMarkerToken = "[SEND_MESSAGE:"

// ActionInstructions teaches the model the send-message directive. The text
// is byte-exact across assemblies and is skipped when the base prompt
// already mentions the directive.
const ActionInstructions = `# Actions

To send a message to one of the user's contacts, embed this directive anywhere in your reply:

[SEND_MESSAGE:recipient|text]

The directive is replaced with a delivery confirmation before the user sees your reply. Only send messages the user explicitly asked for.`

// HeaderCode titles the code-context section.
const HeaderCode = "# Code Context"

// Source yields the base system prompt.
type Source interface {
	SystemPrompt() string
}

// StaticSource is a fixed base prompt.
type StaticSource string

func (s StaticSource) SystemPrompt() string { return string(s) }

// SwappableSource holds the base prompt behind an atomic pointer so a
// Watcher can replace it while requests read it.
type SwappableSource struct {
	v atomic.Pointer[string]
}

// NewSwappableSource creates a source holding the initial prompt text.
func NewSwappableSource(initial string) *SwappableSource {
	s := &SwappableSource{}
	s.v.Store(&initial)
	return s
}

func (s *SwappableSource) SystemPrompt() string {
	return *s.v.Load()
}

// Swap atomically replaces the prompt text.
func (s *SwappableSource) Swap(text string) {
	s.v.Store(&text)
}

// Memories is the slice of memory.Manager the assembler reads.
type Memories interface {
	FormatForPrompt(ctx context.Context, userID, sessionID, message string) (string, error)
	FormatSelfMemories(ctx context.Context) (string, error)
}

// Assembler composes system prompts from the base prompt, the assistant's
// self-knowledge, the user's memory layers, and best-effort code context.
type Assembler struct {
	src  Source
	mem  Memories
	code codectx.Provider
	log  *zap.Logger
}

// NewAssembler wires an assembler from its collaborators. src and code may
// be nil; they default to an empty static source and the silent code
// provider.
func NewAssembler(src Source, mem Memories, code codectx.Provider, log *zap.Logger) *Assembler {
	if src == nil {
		src = StaticSource("")
	}
	if code == nil {
		code = codectx.Static{}
	}
	return &Assembler{src: src, mem: mem, code: code, log: log}
}

// Assemble builds the ordered message list for one chat turn. When override
// is non-empty it becomes the system message verbatim and every other
// section is skipped.
func (a *Assembler) Assemble(ctx context.Context, userID, message, sessionID, override string) ([]llm.Message, error) {
	if override != "" {
		return []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, override),
			llm.NewTextMessage(llm.RoleUser, message),
		}, nil
	}

	base := a.src.SystemPrompt()
	if base == "" {
		base = DefaultSystemPrompt
	}
	sections := []string{base}

	self, err := a.mem.FormatSelfMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("formatting self memories: %w", err)
	}
	if self != "" {
		sections = append(sections, self)
	}

	if !strings.Contains(base, ActionMarkerToken) {
		sections = append(sections, ActionInstructions)
	}

	memText, err := a.mem.FormatForPrompt(ctx, userID, sessionID, message)
	if err != nil {
		return nil, fmt.Errorf("formatting memory layers: %w", err)
	}
	if memText != "" {
		sections = append(sections, memText)
	}

	if code := a.code.Summary(ctx, userID, message); code != "" {
		sections = append(sections, HeaderCode+"\n"+code)
	}

	return []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, strings.Join(sections, "\n\n")),
		llm.NewTextMessage(llm.RoleUser, message),
	}, nil
}
