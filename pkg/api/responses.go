package api

import (
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/eap/pkg/database"
)

// errorResponse is the envelope every non-2xx JSON response uses.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, errorResponse{Error: message})
}

// HealthResponse mirrors the teacher's /health body shape, generalized from
// a single-process alert server to the platform's multi-service topology.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database *database.HealthStatus `json:"database"`
}
