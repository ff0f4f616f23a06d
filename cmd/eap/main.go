// Command eap runs the Enterprise Agent Platform server: goal planning,
// DAG task execution, the thinking-tool pipeline, policy/tenant-isolation
// enforcement, webhook delivery, and the HTTP API that fronts all of it.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/eap/pkg/agentrunner"
	"github.com/codeready-toolchain/eap/pkg/api"
	"github.com/codeready-toolchain/eap/pkg/audit"
	"github.com/codeready-toolchain/eap/pkg/config"
	"github.com/codeready-toolchain/eap/pkg/conversation"
	"github.com/codeready-toolchain/eap/pkg/database"
	"github.com/codeready-toolchain/eap/pkg/executor"
	"github.com/codeready-toolchain/eap/pkg/goal"
	"github.com/codeready-toolchain/eap/pkg/llm"
	"github.com/codeready-toolchain/eap/pkg/memory"
	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/plan"
	"github.com/codeready-toolchain/eap/pkg/planner"
	"github.com/codeready-toolchain/eap/pkg/ratelimit"
	"github.com/codeready-toolchain/eap/pkg/registry"
	"github.com/codeready-toolchain/eap/pkg/tenant"
	"github.com/codeready-toolchain/eap/pkg/thinking"
	"github.com/codeready-toolchain/eap/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables...")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx := context.Background()

	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}
	log.Printf("running in %s environment", cfg.Environment)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	redisClient, err := newRedisClient()
	if err != nil {
		log.Printf("warning: redis unavailable, rate limiter will run in-memory only: %v", err)
		redisClient = nil
	}

	natsConn, err := nats.Connect(getEnv("NATS_URL", nats.DefaultURL))
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()
	log.Println("connected to NATS")

	litellmBaseURL := getEnv("LITELLM_BASE_URL", "http://localhost:4000")
	llmHTTPClient := &http.Client{Timeout: 60 * time.Second}

	// Three model tiers (spec §6 model_light|standard|heavy) back different
	// call sites by how much reasoning depth the task warrants: RedTeam's
	// critical-risk analysis gets the heavy model, routine memory-search
	// query work gets the light model, everything else gets standard.
	llmClient := llm.NewClient(llm.Config{
		BaseURL:      litellmBaseURL,
		DefaultModel: cfg.ModelStandard,
		HTTPClient:   llmHTTPClient,
	})
	lightLLMClient := llm.NewClient(llm.Config{
		BaseURL:      litellmBaseURL,
		DefaultModel: cfg.ModelLight,
		HTTPClient:   llmHTTPClient,
	})
	heavyLLMClient := llm.NewClient(llm.Config{
		BaseURL:      litellmBaseURL,
		DefaultModel: cfg.ModelHeavy,
		HTTPClient:   llmHTTPClient,
	})

	db := dbClient.DB()
	tenants := tenant.NewStore(db)
	goals := goal.NewStore(db)
	conversations := conversation.NewStore(db)
	memories := memory.NewStore(db, lightLLMClient)
	plans := plan.NewStore(db)
	webhooks := webhook.NewStore(db)
	auditLog := audit.NewStore(db)

	reg := registry.New()
	registerAgentCatalog(reg)

	plnr := planner.New(llmClient, reg, goals)
	runner := agentrunner.New(llmClient, reg)
	exec := executor.New(runner)

	redTeam := thinking.NewRedTeam(heavyLLMClient)
	council := thinking.NewCouncil(llmClient)
	firstPrinciples := thinking.NewFirstPrinciples(llmClient)

	deliverer := webhook.NewDeliverer()
	dispatcher := webhook.NewDispatcher(webhooks, deliverer)
	webhookBus := webhook.NewBus(natsConn)
	if _, err := webhookBus.Subscribe(dispatcher); err != nil {
		log.Fatalf("failed to subscribe webhook dispatcher: %v", err)
	}
	retryWorker := webhook.NewRetryWorker(webhooks, dispatcher, 30*time.Second, 50)
	retryWorker.Start(ctx)
	defer retryWorker.Stop()

	limiter := ratelimit.New(redisClient,
		cfg.RateLimitPerMinute,
		getEnvInt("RATE_LIMIT_BURST", 20))

	validator := api.NewJWKSValidator(
		mustGetEnv("JWKS_URL"),
		cfg.OIDCAudience,
		&http.Client{Timeout: 5 * time.Second},
	)
	if cfg.JWKSLocalPath != "" {
		validator = validator.WithLocalJWKSPath(cfg.JWKSLocalPath)
	}

	server := api.NewServer(api.Deps{
		DBClient:        dbClient,
		Config:          cfg,
		Validator:       validator,
		Limiter:         limiter,
		Tenants:         tenants,
		Goals:           goals,
		Conversations:   conversations,
		Memories:        memories,
		Plans:           plans,
		Webhooks:        webhooks,
		WebhookBus:      webhookBus,
		Audit:           auditLog,
		Registry:        reg,
		Planner:         plnr,
		Executor:        exec,
		Runner:          runner,
		RedTeam:         redTeam,
		Council:         council,
		FirstPrinciples: firstPrinciples,
	})

	log.Printf("HTTP server listening on :%s", httpPort)
	if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to start server: %v", err)
	}
}

// newRedisClient dials the rate limiter's backing store. A nil client (with
// an error logged by the caller) is a valid input to ratelimit.New, which
// falls back to its in-memory limiter.
func newRedisClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(getEnv("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func mustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required environment variable %s", key)
	}
	return v
}

// registerAgentCatalog seeds the specialist agents the Goal Planner and DAG
// Executor can dispatch tasks to. The catalog is static for now; a future
// iteration could load it from configuration rather than compiling it in.
func registerAgentCatalog(reg *registry.Registry) {
	specs := []models.AgentSpec{
		{
			ID:              "researcher",
			Description:     "Gathers and synthesizes information from documents and prior conversations",
			Capabilities:    []string{"search", "summarize"},
			MinimumUserRole: models.RoleViewer,
		},
		{
			ID:              "writer",
			Description:     "Drafts and edits documents, reports, and responses",
			Capabilities:    []string{"draft", "edit"},
			MinimumUserRole: models.RoleViewer,
		},
		{
			ID:              "analyst",
			Description:     "Performs quantitative analysis and produces structured findings",
			Capabilities:    []string{"analyze", "structure-data"},
			MinimumUserRole: models.RoleOperator,
		},
		{
			ID:              "executor-agent",
			Description:     "Carries out operational tasks against tenant-managed systems",
			Capabilities:    []string{"execute", "integrate"},
			MinimumUserRole: models.RoleOperator,
		},
		{
			ID:              "admin-agent",
			Description:     "Handles tenant administration and policy-sensitive tasks",
			Capabilities:    []string{"admin"},
			MinimumUserRole: models.RoleAdmin,
		},
	}
	for _, spec := range specs {
		reg.MustRegister(spec)
	}
	slog.Info("agent catalog registered", "agents", len(specs))
}
