package llm

// ChatRequest represents a provider-agnostic chat completion request.
// Provider clients translate it into their own wire format.
type ChatRequest struct {
	// Model name (e.g., "llama3.2", "gpt-4o-mini", "claude-sonnet-4-5")
	Model string `json:"model"`

	// Conversation messages, system prompt first when present
	Messages []Message `json:"messages"`

	// Generation parameters (unified across providers)
	Params
}

// Params holds the generation parameters shared by every backend. Nil fields
// are omitted from the provider request so backend defaults apply.
type Params struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

// Float returns a pointer to v, for populating optional Params fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for populating optional Params fields.
func Int(v int) *int { return &v }

// SystemPrompt returns the content of the leading system message, or ""
// when the request carries none.
func (r *ChatRequest) SystemPrompt() string {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[0].Content
	}
	return ""
}

// ChatMessages returns the messages without the leading system message.
// Providers that take the system prompt out of band (Anthropic) use this
// together with SystemPrompt.
func (r *ChatRequest) ChatMessages() []Message {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[1:]
	}
	return r.Messages
}
