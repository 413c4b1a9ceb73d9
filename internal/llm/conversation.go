// Package llm sends structured conversations to a language-model provider
// and normalizes the reply to plain text. Provider differences in request
// and reply envelopes are handled here so callers only see text or a
// classified *Error.
package llm

import (
	"context"
	"strings"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// System returns a system turn.
func System(text string) Turn { return Turn{Role: RoleSystem, Text: text} }

// User returns a user turn.
func User(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// Assistant returns an assistant turn.
func Assistant(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// Conversation is an ordered, immutable sequence of turns. Order is the prompt.
type Conversation struct {
	turns []Turn
}

// NewConversation copies turns into a new Conversation.
func NewConversation(turns ...Turn) Conversation {
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return Conversation{turns: cp}
}

// Turns returns a copy of the turns in order.
func (c Conversation) Turns() []Turn {
	cp := make([]Turn, len(c.turns))
	copy(cp, c.turns)
	return cp
}

// Len reports the number of turns.
func (c Conversation) Len() int { return len(c.turns) }

// SystemText joins all system turns, for providers that take the system
// prompt as a separate field.
func (c Conversation) SystemText() string {
	var parts []string
	for _, t := range c.turns {
		if t.Role == RoleSystem {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Flatten renders the conversation as a single instruction string for
// providers that do not accept a role-tagged list.
func (c Conversation) Flatten() string {
	var sb strings.Builder
	for i, t := range c.turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch t.Role {
		case RoleSystem:
			sb.WriteString("Instructions:\n")
		case RoleAssistant:
			sb.WriteString("Assistant:\n")
		default:
			sb.WriteString("User:\n")
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Reply is a successful, normalized model answer.
type Reply struct {
	Text     string
	Model    string
	Endpoint string
	Shape    Shape
	Attempts int
	// Raw is the provider body the text was extracted from.
	Raw string
}

// Provider is implemented by every model backend. Failures are always
// returned as *Error.
type Provider interface {
	Send(ctx context.Context, conv Conversation, model string) (*Reply, error)
}
