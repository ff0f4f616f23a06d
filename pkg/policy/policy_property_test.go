package policy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/codeready-toolchain/eap/pkg/models"
)

var allPermissions = []Permission{
	PermChatSend, PermDocumentRead, PermDocumentUpload, PermDocumentDelete,
	PermConversationRead, PermConversationWrite, PermConversationDelete,
	PermAdminTenantRead, PermAdminTenantWrite, PermAdminUserRead, PermAdminUserWrite,
	PermAuditRead, PermPlanCreate, PermPlanApprove, PermGoalWrite,
	PermAgentMemoryRead, PermAgentMemoryWrite, PermWebhookManage, PermRateLimitOverride,
}

func genPermission() gopter.Gen {
	return gen.OneConstOf(toAnySlice(allPermissions)...)
}

func toAnySlice(perms []Permission) []interface{} {
	out := make([]interface{}, len(perms))
	for i, p := range perms {
		out[i] = p
	}
	return out
}

// TestPermissionMonotonicity_Property verifies invariant 2 from spec §8: if
// viewer can perform op X, then operator and admin can; if operator can,
// admin can. A higher role must never be denied something a lower role was
// granted.
func TestPermissionMonotonicity_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("operator and admin can do anything viewer can", prop.ForAll(
		func(perm Permission) bool {
			if CheckPermission(models.RoleViewer, perm) != nil {
				return true
			}
			return CheckPermission(models.RoleOperator, perm) == nil &&
				CheckPermission(models.RoleAdmin, perm) == nil
		},
		genPermission(),
	))

	properties.Property("admin can do anything operator can", prop.ForAll(
		func(perm Permission) bool {
			if CheckPermission(models.RoleOperator, perm) != nil {
				return true
			}
			return CheckPermission(models.RoleAdmin, perm) == nil
		},
		genPermission(),
	))

	properties.TestingRun(t)
}
