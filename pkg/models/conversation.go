package models

import (
	"encoding/json"
	"time"
)

// Role is the persisted author of a message. The provider layer maps
// RoleAgent to whatever the model API calls its own turns.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// Conversation is a persistent thread of messages owned by a single user.
type Conversation struct {
	ID        int64     `json:"conversation_id"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single entry in a conversation. Messages are immutable once
// appended; agent messages may carry the tool invocations that produced them.
type Message struct {
	ID             int64            `json:"message_id"`
	ConversationID int64            `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	ToolCalls      []ToolInvocation `json:"tool_calls,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ToolInvocation is the durable record of one executed tool call: the
// arguments the model supplied and the result that was fed back to it.
type ToolInvocation struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}
