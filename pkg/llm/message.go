package llm

// Roles understood by every completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single role-tagged entry in a completion request.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // The message content
}

// SystemMessage returns the instruction entry placed ahead of a conversation.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns an entry representing what the caller said.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an entry representing what the service replied.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
