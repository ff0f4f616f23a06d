package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/policy"
	"github.com/codeready-toolchain/eap/pkg/tenant"
)

func (s *Server) registerTenantRoutes(v1 *gin.RouterGroup) {
	admin := v1.Group("/admin/tenants")
	admin.POST("", requirePermission(policy.PermAdminTenantWrite), s.createTenantHandler)
	admin.GET("/:id", requirePermission(policy.PermAdminTenantRead), s.getTenantHandler)
	admin.POST("/:id/suspend", requirePermission(policy.PermAdminTenantWrite), s.suspendTenantHandler)
	admin.POST("/:id/reactivate", requirePermission(policy.PermAdminTenantWrite), s.reactivateTenantHandler)
	admin.GET("/:id/settings", requirePermission(policy.PermAdminTenantRead), s.getTenantSettingsHandler)
	admin.PATCH("/:id/settings", requirePermission(policy.PermAdminTenantWrite), s.updateTenantSettingsHandler)
}

type createTenantRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

func (s *Server) createTenantHandler(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.tenants.CreateTenant(c.Request.Context(), req.Name, req.Slug)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) getTenantHandler(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid tenant id")
		return
	}

	t, err := s.tenants.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) suspendTenantHandler(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid tenant id")
		return
	}
	if err := s.tenants.SuspendTenant(c.Request.Context(), tenantID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reactivateTenantHandler(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid tenant id")
		return
	}
	if err := s.tenants.ReactivateTenant(c.Request.Context(), tenantID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getTenantSettingsHandler(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid tenant id")
		return
	}
	settings, err := s.tenants.GetOrCreateSettings(c.Request.Context(), tenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type updateTenantSettingsRequest struct {
	CustomRateLimit    *int             `json:"custom_rate_limit"`
	EnabledFeatures    []string         `json:"enabled_features"`
	SetEnabledFeatures bool             `json:"set_enabled_features"`
	MaxUsers           *int             `json:"max_users"`
	MaxStorageGB       *int             `json:"max_storage_gb"`
	TokenBudgetDaily   *int             `json:"token_budget_daily"`
	TokenBudgetMonthly *int             `json:"token_budget_monthly"`
	CustomSystemPrompt *string          `json:"custom_system_prompt"`
	Branding           map[string]any   `json:"branding"`
	SetBranding        bool             `json:"set_branding"`
}

func (s *Server) updateTenantSettingsHandler(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req updateTenantSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := s.tenants.UpdateSettings(c.Request.Context(), tenantID, tenant.SettingsUpdate{
		CustomRateLimit:    req.CustomRateLimit,
		EnabledFeatures:    req.EnabledFeatures,
		SetEnabledFeatures: req.SetEnabledFeatures,
		MaxUsers:           req.MaxUsers,
		MaxStorageGB:       req.MaxStorageGB,
		TokenBudgetDaily:   req.TokenBudgetDaily,
		TokenBudgetMonthly: req.TokenBudgetMonthly,
		CustomSystemPrompt: req.CustomSystemPrompt,
		Branding:           req.Branding,
		SetBranding:        req.SetBranding,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
