package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerMemoryRoutes(v1 *gin.RouterGroup) {
	v1.POST("/agents/:agent_id/memories", requirePermission(policy.PermAgentMemoryWrite), s.storeMemoryHandler)
	v1.GET("/agents/:agent_id/memories/:key", requirePermission(policy.PermAgentMemoryRead), s.retrieveMemoryHandler)
	v1.GET("/agents/:agent_id/memories", requirePermission(policy.PermAgentMemoryRead), s.searchMemoryHandler)
}

type storeMemoryRequest struct {
	Key      string         `json:"key" binding:"required"`
	Value    string         `json:"value" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) storeMemoryHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	agentID := c.Param("agent_id")

	var req storeMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.memories.Store(c.Request.Context(), agentID, p.TenantID, req.Key, req.Value, req.Metadata); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) retrieveMemoryHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	agentID := c.Param("agent_id")
	key := c.Param("key")

	m, err := s.memories.Retrieve(c.Request.Context(), agentID, p.TenantID, key)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) searchMemoryHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	agentID := c.Param("agent_id")
	query := c.Query("q")

	limit := 10
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 50 {
		limit = v
	}

	results, err := s.memories.Search(c.Request.Context(), agentID, p.TenantID, query, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
