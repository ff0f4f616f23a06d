package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentMemory is a single key/value fact an agent has stored, unique per
// (AgentID, TenantID, Key). Storing the same key again upserts in place.
type AgentMemory struct {
	ID          uuid.UUID
	AgentID     string
	TenantID    uuid.UUID
	Key         string
	Value       string
	AccessCount int
	Metadata    map[string]any
	CreatedAt   time.Time
}

// GetTenantID implements TenantScoped.
func (m AgentMemory) GetTenantID() uuid.UUID { return m.TenantID }
