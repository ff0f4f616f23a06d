package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerAuditRoutes(v1 *gin.RouterGroup) {
	v1.GET("/audit-logs", requirePermission(policy.PermAuditRead), s.listAuditLogsHandler)
}

func (s *Server) listAuditLogsHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	limit, _ := pageParams(c)

	if resourceType := c.Query("resource_type"); resourceType != "" {
		entries, err := s.audit.ListForResource(c.Request.Context(), p.TenantID, resourceType, c.Query("resource_id"), limit)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	entries, err := s.audit.ListForTenant(c.Request.Context(), p.TenantID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
