// Package policy is the single enforcement point for the two mandatory
// security properties of the platform: RBAC and tenant isolation.
//
//  1. RBAC: every write (and some reads) is gated by CheckPermission against
//     a static permission -> minimum-role table. Read operations are open
//     to any authenticated user within the tenant unless listed otherwise.
//  2. Tenant isolation: AssertSameTenant is the canonical guard applied
//     after fetching any models.TenantScoped resource by ID, so a caller
//     who guesses another tenant's UUID gets a 404, never a 403 - this
//     does not confirm the resource exists elsewhere.
package policy

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// Permission is one fine-grained action the policy engine can gate.
type Permission string

const (
	PermChatSend             Permission = "chat.send"
	PermDocumentRead         Permission = "document.read"
	PermDocumentUpload       Permission = "document.upload"
	PermDocumentDelete       Permission = "document.delete"
	PermConversationRead     Permission = "conversation.read"
	PermConversationWrite    Permission = "conversation.write"
	PermConversationDelete   Permission = "conversation.delete"
	PermAdminTenantRead      Permission = "admin.tenant.read"
	PermAdminTenantWrite     Permission = "admin.tenant.write"
	PermAdminUserRead        Permission = "admin.user.read"
	PermAdminUserWrite       Permission = "admin.user.write"
	PermAuditRead            Permission = "audit.read"
	PermPlanCreate           Permission = "plan.create"
	PermPlanApprove          Permission = "plan.approve"
	PermGoalWrite            Permission = "goal.write"
	PermAgentMemoryRead      Permission = "agent_memory.read"
	PermAgentMemoryWrite     Permission = "agent_memory.write"
	PermWebhookManage        Permission = "webhook.manage"
	PermRateLimitOverride    Permission = "rate_limit.override"
)

// permissionToMinRole maps each permission to the minimum role required to
// exercise it. A permission absent from this table defaults to RoleAdmin -
// the engine fails closed rather than silently granting access to a
// permission nobody has explicitly graded.
var permissionToMinRole = map[Permission]models.Role{
	PermChatSend:           models.RoleViewer,
	PermDocumentRead:       models.RoleViewer,
	PermConversationRead:   models.RoleViewer,
	PermConversationWrite:  models.RoleViewer,
	PermAgentMemoryRead:    models.RoleViewer,
	PermDocumentUpload:     models.RoleOperator,
	PermConversationDelete: models.RoleOperator,
	PermPlanCreate:         models.RoleOperator,
	PermPlanApprove:        models.RoleOperator,
	PermGoalWrite:          models.RoleOperator,
	PermAgentMemoryWrite:   models.RoleOperator,
	PermDocumentDelete:     models.RoleAdmin,
	PermAdminTenantRead:    models.RoleAdmin,
	PermAdminTenantWrite:   models.RoleAdmin,
	PermAdminUserRead:      models.RoleAdmin,
	PermAdminUserWrite:     models.RoleAdmin,
	PermAuditRead:          models.RoleAdmin,
	PermWebhookManage:      models.RoleAdmin,
	PermRateLimitOverride:  models.RoleAdmin,
}

// MinRole returns the minimum role required for permission p, defaulting to
// RoleAdmin if p is not registered.
func MinRole(p Permission) models.Role {
	if role, ok := permissionToMinRole[p]; ok {
		return role
	}
	return models.RoleAdmin
}

// CheckPermission reports whether role satisfies permission, logging (and
// returning apperr.ErrForbidden) on denial.
func CheckPermission(role models.Role, permission Permission) error {
	min := MinRole(permission)
	if role.AtLeast(min) {
		return nil
	}
	slog.Warn("policy.permission_denied",
		"role", role,
		"permission", permission,
		"required_role", min,
	)
	return apperr.ErrForbidden
}

// RequireRole requires that role meets minimum, independent of any named
// Permission. Used by middleware that gates on role alone (e.g. the admin
// API surface).
func RequireRole(role models.Role, minimum models.Role) error {
	if role.AtLeast(minimum) {
		return nil
	}
	slog.Warn("policy.role_requirement_not_met", "role", role, "required_role", minimum)
	return apperr.ErrForbidden
}

// AssertSameTenant guards against cross-tenant access to a resource already
// fetched by ID. It deliberately returns apperr.ErrCrossTenant - which
// handlers map to HTTP 404 - rather than ErrForbidden, so a caller probing
// another tenant's UUID cannot distinguish "not found" from "not yours".
func AssertSameTenant(resource models.TenantScoped, requestingTenant uuid.UUID) error {
	if resource.GetTenantID() == requestingTenant {
		return nil
	}
	slog.Warn("policy.cross_tenant_access_attempt",
		"resource_tenant", resource.GetTenantID(),
		"requesting_tenant", requestingTenant,
	)
	return apperr.ErrCrossTenant
}
