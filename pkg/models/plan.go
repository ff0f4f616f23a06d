package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the PlanRecord lifecycle: draft -> {approved, rejected};
// approved -> executing -> {complete, failed}.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanApproved  PlanStatus = "approved"
	PlanRejected  PlanStatus = "rejected"
	PlanExecuting PlanStatus = "executing"
	PlanComplete  PlanStatus = "complete"
	PlanFailed    PlanStatus = "failed"
)

// PlanRecord persists a TaskGraph across the approval workflow. Graph is
// serialized to GraphJSON using TaskGraph.CanonicalForm before storage and
// reconstructed from it on read.
type PlanRecord struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	CreatedBy     uuid.UUID
	Goal          string
	Status        PlanStatus
	GraphJSON     []byte
	ExecutionPlan string
	MetadataJSON  []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ApprovedBy    *uuid.UUID
	ApprovedAt    *time.Time
	RejectedBy    *uuid.UUID
	RejectedAt    *time.Time
}

// GetTenantID implements TenantScoped.
func (p PlanRecord) GetTenantID() uuid.UUID { return p.TenantID }

// CanApprove reports whether the plan may transition to approved/rejected:
// only from draft, per spec.md §3's invariant.
func (p PlanRecord) CanApprove() bool { return p.Status == PlanDraft }
