package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerGoalRoutes(v1 *gin.RouterGroup) {
	v1.POST("/goals", requirePermission(policy.PermGoalWrite), s.createGoalHandler)
	v1.GET("/goals", s.listGoalsHandler)
	v1.GET("/goals/:id", s.getGoalHandler)
	v1.POST("/goals/:id/progress", requirePermission(policy.PermGoalWrite), s.appendGoalProgressHandler)
	v1.POST("/goals/:id/status", requirePermission(policy.PermGoalWrite), s.transitionGoalStatusHandler)
}

type createGoalRequest struct {
	GoalText string `json:"goal_text" binding:"required"`
}

func (s *Server) createGoalHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	g, err := s.goals.Create(c.Request.Context(), p.TenantID, p.UserID, req.GoalText)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) listGoalsHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	goals, err := s.goals.ListForUser(c.Request.Context(), p.TenantID, p.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, goals)
}

func (s *Server) getGoalHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid goal id")
		return
	}

	g, err := s.goals.Get(c.Request.Context(), goalID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type appendProgressRequest struct {
	Note string `json:"note" binding:"required"`
}

func (s *Server) appendGoalProgressHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid goal id")
		return
	}

	var req appendProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	g, err := s.goals.AppendProgressNote(c.Request.Context(), goalID, p.TenantID, p.UserID, req.Note)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type transitionGoalStatusRequest struct {
	Status models.GoalStatus `json:"status" binding:"required"`
}

func (s *Server) transitionGoalStatusHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid goal id")
		return
	}

	var req transitionGoalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	// Goal ownership, not just role, gates the transition: TransitionStatus
	// only matches goals owned by the userID it is given, and only an admin
	// is resolved to the goal's owner here, so a non-owning operator is
	// rejected even though PermGoalWrite already let them reach this handler.
	ownerID := p.UserID
	if p.Role == models.RoleAdmin {
		existing, err := s.goals.Get(c.Request.Context(), goalID, p.TenantID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		ownerID = existing.UserID
	}

	g, err := s.goals.TransitionStatus(c.Request.Context(), goalID, p.TenantID, ownerID, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}
