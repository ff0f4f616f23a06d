package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/plan"
	"github.com/codeready-toolchain/eap/pkg/planner"
	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerPlanRoutes(v1 *gin.RouterGroup) {
	v1.POST("/plans", requirePermission(policy.PermPlanCreate), s.createPlanHandler)
	v1.GET("/plans", s.listPlansHandler)
	v1.GET("/plans/:id", s.getPlanHandler)
	v1.POST("/plans/:id/approve", requirePermission(policy.PermPlanApprove), requireMFA(s.cfg), s.approvePlanHandler)
	v1.POST("/plans/:id/reject", requirePermission(policy.PermPlanApprove), s.rejectPlanHandler)
	v1.POST("/plans/:id/execute", requirePermission(policy.PermPlanApprove), s.executePlanHandler)
}

type createPlanRequest struct {
	Goal string `json:"goal" binding:"required"`
}

func (s *Server) createPlanHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	goalCtx := &planner.GoalContext{TenantID: p.TenantID, UserID: p.UserID, RequestingUserID: &p.UserID}
	graph, err := s.planner.Decompose(c.Request.Context(), req.Goal, p.Role, goalCtx)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	record, err := s.plans.Create(c.Request.Context(), p.TenantID, p.UserID, req.Goal, graph, planner.GetExecutionPlan(graph))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) listPlansHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	limit, offset := pageParams(c)

	plans, err := s.plans.ListForTenant(c.Request.Context(), p.TenantID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (s *Server) getPlanHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid plan id")
		return
	}

	record, err := s.plans.Get(c.Request.Context(), planID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) approvePlanHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid plan id")
		return
	}

	record, err := s.plans.Approve(c.Request.Context(), planID, p.TenantID, p.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) rejectPlanHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid plan id")
		return
	}

	record, err := s.plans.Reject(c.Request.Context(), planID, p.TenantID, p.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// executePlanHandler runs an approved plan to completion synchronously.
// Large graphs would warrant an async job queue, but no such component is
// in scope here; the DAG Executor's wave-based concurrency keeps this
// bounded to the graph's own critical path length.
func (s *Server) executePlanHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid plan id")
		return
	}

	record, err := s.plans.Get(c.Request.Context(), planID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if record.Status != models.PlanApproved {
		respondError(c, http.StatusConflict, "plan is not approved")
		return
	}

	graph, err := plan.DecodeGraph(record)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if err := s.plans.MarkExecuting(c.Request.Context(), planID, p.TenantID); err != nil {
		respondServiceError(c, err)
		return
	}

	completed, execErr := s.executor.ExecuteGraph(c.Request.Context(), graph)
	_ = completed
	if finishErr := s.plans.Finish(c.Request.Context(), planID, p.TenantID, graph, execErr != nil); finishErr != nil {
		respondServiceError(c, finishErr)
		return
	}
	if execErr != nil {
		respondError(c, http.StatusUnprocessableEntity, execErr.Error())
		return
	}

	final, err := s.plans.Get(c.Request.Context(), planID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, final)
}
