package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerWebhookRoutes(v1 *gin.RouterGroup) {
	g := v1.Group("/webhooks", requirePermission(policy.PermWebhookManage))
	g.POST("", s.registerWebhookHandler)
	g.GET("", s.listWebhooksHandler)
	g.GET("/:id", s.getWebhookHandler)
	g.DELETE("/:id", s.deleteWebhookHandler)
	g.GET("/:id/deliveries", s.listWebhookDeliveriesHandler)
}

type registerWebhookRequest struct {
	URL    string                `json:"url" binding:"required"`
	Events []models.WebhookEvent `json:"events" binding:"required"`
	Secret string                `json:"secret" binding:"required"`
}

func (s *Server) registerWebhookHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	var req registerWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	w, err := s.webhooks.Register(c.Request.Context(), p.TenantID, req.URL, req.Events, req.Secret)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) listWebhooksHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	hooks, err := s.webhooks.ListForTenant(c.Request.Context(), p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, hooks)
}

func (s *Server) getWebhookHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid webhook id")
		return
	}

	w, err := s.webhooks.Get(c.Request.Context(), webhookID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) deleteWebhookHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid webhook id")
		return
	}

	deleted, err := s.webhooks.Delete(c.Request.Context(), webhookID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !deleted {
		respondError(c, http.StatusNotFound, "webhook not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listWebhookDeliveriesHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid webhook id")
		return
	}

	// Confirm the webhook belongs to the caller's tenant before listing its
	// deliveries, since GetDeliveries itself is not tenant-scoped.
	if _, err := s.webhooks.Get(c.Request.Context(), webhookID, p.TenantID); err != nil {
		respondServiceError(c, err)
		return
	}

	limit, _ := pageParams(c)
	deliveries, err := s.webhooks.GetDeliveries(c.Request.Context(), webhookID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}
