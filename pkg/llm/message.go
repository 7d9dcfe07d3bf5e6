package llm

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation. Content is plain
// text; the assembler produces the system message, callers produce the rest.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}
