package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/policy"
)

func (s *Server) registerConversationRoutes(v1 *gin.RouterGroup) {
	v1.POST("/conversations", requirePermission(policy.PermConversationWrite), s.createConversationHandler)
	v1.GET("/conversations", requirePermission(policy.PermConversationRead), s.listConversationsHandler)
	v1.GET("/conversations/search", requirePermission(policy.PermConversationRead), s.searchConversationsHandler)
	v1.GET("/conversations/:id", requirePermission(policy.PermConversationRead), s.getConversationHandler)
	v1.DELETE("/conversations/:id", requirePermission(policy.PermConversationDelete), s.deleteConversationHandler)
	v1.POST("/conversations/:id/messages", requirePermission(policy.PermConversationWrite), s.addMessageHandler)
	v1.GET("/conversations/:id/messages", requirePermission(policy.PermConversationRead), s.listMessagesHandler)
}

type createConversationRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

func (s *Server) createConversationHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := s.conversations.Create(c.Request.Context(), p.TenantID, p.UserID, req.AgentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) listConversationsHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	limit, offset := pageParams(c)

	convs, err := s.conversations.ListForUser(c.Request.Context(), p.TenantID, p.UserID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) searchConversationsHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	query := c.Query("q")
	if query == "" {
		respondError(c, http.StatusBadRequest, "q query parameter is required")
		return
	}
	limit, _ := pageParams(c)

	convs, err := s.conversations.SearchByContent(c.Request.Context(), p.TenantID, p.UserID, query, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) getConversationHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, err := s.conversations.Get(c.Request.Context(), conversationID, p.TenantID, p.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversationHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	if err := s.conversations.Delete(c.Request.Context(), conversationID, p.TenantID, p.UserID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addMessageRequest struct {
	Role    models.MessageRole `json:"role" binding:"required"`
	Content string             `json:"content" binding:"required"`
}

func (s *Server) addMessageHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := s.conversations.AddMessage(c.Request.Context(), conversationID, p.TenantID, req.Role, req.Content)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) listMessagesHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	msgs, err := s.conversations.Messages(c.Request.Context(), conversationID, p.TenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// pageParams reads the standard limit/offset query parameters, defaulting
// to a page of 50 and capping at 200 so a caller cannot force an unbounded
// scan of a tenant's conversations.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
