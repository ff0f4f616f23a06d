package models

import (
	"time"

	"github.com/google/uuid"
)

// GoalStatus is the UserGoal lifecycle. Only the owning user or an admin may
// transition it; an agent may append ProgressNotes without a status change.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

// UserGoal tracks a user's high-level objective across one or more plans.
type UserGoal struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	UserID        uuid.UUID
	GoalText      string
	Status        GoalStatus
	ProgressNotes []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// GetTenantID implements TenantScoped.
func (g UserGoal) GetTenantID() uuid.UUID { return g.TenantID }
