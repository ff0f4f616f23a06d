package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditStatus records whether the audited action succeeded.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditLog is one append-only record of a policy-relevant action. Rows are
// never updated or deleted by application code.
type AuditLog struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Status       AuditStatus
	ModelUsed    *string
	LatencyMS    *int
	Extra        map[string]any
	Timestamp    time.Time
}

// GetTenantID implements TenantScoped.
func (a AuditLog) GetTenantID() uuid.UUID { return a.TenantID }
