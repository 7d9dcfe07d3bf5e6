package llm

import "time"

// ChatResponse represents a provider-agnostic chat completion response,
// normalized from whatever wire format the backend returned.
type ChatResponse struct {
	// The assistant's reply text
	Content string `json:"content"`

	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Stop reason (e.g., "stop", "length", "end_turn")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage, when the backend reports it
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token counts reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ErrorResponse is the JSON error body returned by the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
