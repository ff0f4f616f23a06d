package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole distinguishes who authored a ConversationMessage.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation groups an ordered sequence of messages exchanged between a
// user and an agent. NextSequenceNumber is the monotonic counter handed out
// to the next inserted message; it is incremented atomically by the store,
// never computed from a SELECT MAX, to avoid a race between concurrent
// appends.
type Conversation struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	UserID             uuid.UUID
	AgentID            string
	NextSequenceNumber int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// GetTenantID implements TenantScoped.
func (c Conversation) GetTenantID() uuid.UUID { return c.TenantID }

// ConversationMessage is one turn in a Conversation, ordered by
// SequenceNumber within it.
type ConversationMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	TenantID       uuid.UUID
	SequenceNumber int
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// GetTenantID implements TenantScoped.
func (m ConversationMessage) GetTenantID() uuid.UUID { return m.TenantID }
