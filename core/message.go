package core

import "time"

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is who produced the message.
	Role Role `json:"role"`

	// Content is the plain text of the message.
	Content string `json:"content"`

	// CreatedAt is when the message was recorded. Zero when unknown.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text, CreatedAt: time.Now().UTC()}
}

// LastUserMessage returns the most recent user message, if any.
func LastUserMessage(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i], true
		}
	}
	return Message{}, false
}
