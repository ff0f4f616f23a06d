package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerThinkingRoutes(v1 *gin.RouterGroup) {
	v1.POST("/thinking/red-team", s.redTeamHandler)
	v1.POST("/thinking/council", s.councilHandler)
	v1.POST("/thinking/first-principles", s.firstPrinciplesHandler)
}

type redTeamRequest struct {
	Response  string   `json:"response" binding:"required"`
	Sources   []string `json:"sources"`
	Clearance string   `json:"clearance"`
	Query     string   `json:"query"`
}

func (s *Server) redTeamHandler(c *gin.Context) {
	var req redTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.redTeam.Analyze(c.Request.Context(), req.Response, req.Sources, req.Clearance, req.Query)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type councilRequest struct {
	Query   string `json:"query" binding:"required"`
	Context string `json:"context"`
}

func (s *Server) councilHandler(c *gin.Context) {
	var req councilRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.council.Deliberate(c.Request.Context(), req.Query, req.Context)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type firstPrinciplesRequest struct {
	Query   string `json:"query" binding:"required"`
	Context string `json:"context"`
}

func (s *Server) firstPrinciplesHandler(c *gin.Context) {
	var req firstPrinciplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.firstPrinciples.Decompose(c.Request.Context(), req.Query, req.Context)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
