package models

import (
	"fmt"
	"time"
)

type Conversation struct {
	ID        int64
	UserID    int64
	Title     *string
	CreatedAt time.Time
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleSystem, MessageRoleUser, MessageRoleAssistant:
		return true
	}
	return false
}

func ParseMessageRole(s string) (MessageRole, error) {
	r := MessageRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown message role %q", s)
	}
	return r, nil
}

// Message belongs to one conversation. Insertion order is ID order.
type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Content        string
	TokenCount     *int
	CreatedAt      time.Time
}
