package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// Principal is the authenticated caller attached to the gin.Context by the
// auth middleware. Every handler that touches tenant-scoped data reads its
// TenantID and Role from here rather than trusting a request body field.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     models.Role
}

const principalKey = "api.principal"

func setPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// CurrentPrincipal returns the authenticated caller for the request, or nil
// if requireAuth was never run (should not happen for any registered route
// other than /health).
func CurrentPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
