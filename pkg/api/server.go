// Package api provides the platform's HTTP surface: Bearer-token auth,
// RBAC/tenant-isolation enforcement, rate limiting, and the handlers for
// goals, conversations, agent memory, plans, thinking tools, webhooks, and
// tenant/user/audit administration.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/eap/pkg/agentrunner"
	"github.com/codeready-toolchain/eap/pkg/audit"
	"github.com/codeready-toolchain/eap/pkg/config"
	"github.com/codeready-toolchain/eap/pkg/conversation"
	"github.com/codeready-toolchain/eap/pkg/database"
	"github.com/codeready-toolchain/eap/pkg/executor"
	"github.com/codeready-toolchain/eap/pkg/goal"
	"github.com/codeready-toolchain/eap/pkg/memory"
	"github.com/codeready-toolchain/eap/pkg/plan"
	"github.com/codeready-toolchain/eap/pkg/planner"
	"github.com/codeready-toolchain/eap/pkg/ratelimit"
	"github.com/codeready-toolchain/eap/pkg/registry"
	"github.com/codeready-toolchain/eap/pkg/tenant"
	"github.com/codeready-toolchain/eap/pkg/thinking"
	"github.com/codeready-toolchain/eap/pkg/webhook"
)

// Server is the platform's HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	dbClient   *database.Client
	cfg        config.Config

	validator Validator
	limiter   *ratelimit.Limiter

	tenants       *tenant.Store
	goals         *goal.Store
	conversations *conversation.Store
	memories      *memory.Store
	plans         *plan.Store
	webhooks      *webhook.Store
	webhookBus    *webhook.Bus
	audit         *audit.Store
	registry      *registry.Registry

	planner  *planner.Planner
	executor *executor.Executor
	runner   *agentrunner.Runner

	redTeam         *thinking.RedTeam
	council         *thinking.Council
	firstPrinciples *thinking.FirstPrinciples
}

// Deps collects everything NewServer needs to wire the API's routes.
// Grouping these into one struct keeps NewServer's signature stable as the
// platform grows new resource types, mirroring the teacher's incremental
// Set*-method wiring but resolved up front since every dependency here is
// available by the time the server starts (unlike tarsy's phased rollout).
type Deps struct {
	DBClient      *database.Client
	Config        config.Config
	Validator     Validator
	Limiter       *ratelimit.Limiter
	Tenants       *tenant.Store
	Goals         *goal.Store
	Conversations *conversation.Store
	Memories      *memory.Store
	Plans         *plan.Store
	Webhooks      *webhook.Store
	WebhookBus    *webhook.Bus
	Audit         *audit.Store
	Registry      *registry.Registry
	Planner       *planner.Planner
	Executor      *executor.Executor
	Runner        *agentrunner.Runner
	RedTeam       *thinking.RedTeam
	Council       *thinking.Council
	FirstPrinciples *thinking.FirstPrinciples
}

// NewServer builds a Server with all routes registered.
func NewServer(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{
		engine:          e,
		dbClient:        d.DBClient,
		cfg:             d.Config,
		validator:       d.Validator,
		limiter:         d.Limiter,
		tenants:         d.Tenants,
		goals:           d.Goals,
		conversations:   d.Conversations,
		memories:        d.Memories,
		plans:           d.Plans,
		webhooks:        d.Webhooks,
		webhookBus:      d.WebhookBus,
		audit:           d.Audit,
		registry:        d.Registry,
		planner:         d.Planner,
		executor:        d.Executor,
		runner:          d.Runner,
		redTeam:         d.RedTeam,
		council:         d.Council,
		firstPrinciples: d.FirstPrinciples,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(requestID())
	s.engine.Use(securityHeaders(string(s.cfg.Environment)))
	s.engine.Use(corsMiddleware(s.cfg.CORSAllowedOrigins, !s.cfg.IsProd()))

	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	s.engine.GET("/health/ready", s.readyHandler)

	v1 := s.engine.Group("/api/v1")
	v1.Use(requireAuth(s.validator))
	v1.Use(rateLimit(s.limiter))

	s.registerGoalRoutes(v1)
	s.registerConversationRoutes(v1)
	s.registerMemoryRoutes(v1)
	s.registerPlanRoutes(v1)
	s.registerThinkingRoutes(v1)
	s.registerWebhookRoutes(v1)
	s.registerTenantRoutes(v1)
	s.registerAuditRoutes(v1)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by tests serving on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: dbHealth})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Database: dbHealth})
}

func (s *Server) readyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.dbClient.DB().PingContext(ctx); err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}
