package models

import (
	"time"

	"github.com/google/uuid"
)

// User is unique per (TenantID, ExternalID). It is JIT-provisioned on first
// successful authentication at RoleViewer regardless of any role claim in
// the token — see pkg/tenant's Store.GetOrProvisionUser.
type User struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ExternalID string
	Email      string
	Role       Role
	Active     bool
	LastLogin  *time.Time
	CreatedAt  time.Time
}

// GetTenantID implements TenantScoped.
func (u User) GetTenantID() uuid.UUID { return u.TenantID }
