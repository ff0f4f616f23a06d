// Package models holds the platform's persisted entity types. Every
// tenant-scoped entity implements TenantScoped so the policy engine's tenant
// check (policy.AssertSameTenant) can require a tenant_id at compile time
// instead of by convention.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantScoped is implemented by every entity that carries a tenant_id.
// policy.AssertSameTenant only accepts types satisfying this interface, so a
// developer cannot accidentally run the cross-tenant check against an entity
// that was never meant to be tenant-scoped.
type TenantScoped interface {
	GetTenantID() uuid.UUID
}

// Tenant is the top of the platform's entity hierarchy. Every other
// persisted entity is owned, directly or transitively, by a Tenant, which
// cascades on delete.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Active    bool
	CreatedAt time.Time
	DeletedAt *time.Time
}

// GetTenantID implements TenantScoped trivially for Tenant itself so
// policy.AssertSameTenant can be used uniformly, even though a Tenant row
// is scoped to its own id.
func (t Tenant) GetTenantID() uuid.UUID { return t.ID }

// Role is a user's platform privilege level. Roles are linearly ordered:
// RoleViewer < RoleOperator < RoleAdmin.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// rank assigns each role a comparable integer so AtLeast can answer
// "is role A at least as privileged as role B" without a switch at every
// call site.
var rank = map[Role]int{
	RoleViewer:   0,
	RoleOperator: 1,
	RoleAdmin:    2,
}

// Valid reports whether r is one of the three recognised roles.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast reports whether r is at least as privileged as min.
func (r Role) AtLeast(min Role) bool {
	return rank[r] >= rank[min]
}

// TenantSettings overrides platform defaults for a single tenant. Every
// field is a pointer (or nil map/slice) so absence means "use platform
// default" rather than a zero value colliding with an intentional override.
type TenantSettings struct {
	TenantID            uuid.UUID
	CustomRateLimit     *int
	CustomModelConfig   map[string]any
	EnabledFeatures     map[string]bool
	MaxUsers            *int
	MaxStorageGB        *int
	TokenBudgetDaily    *int64
	TokenBudgetMonthly  *int64
	CustomSystemPrompt  *string
	Branding            map[string]any
	UpdatedAt           time.Time
}

// GetTenantID implements TenantScoped.
func (s TenantSettings) GetTenantID() uuid.UUID { return s.TenantID }
