package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadConfigFromEnv reads every option named in the platform's environment
// configuration (database_url/redis_url are loaded directly by
// pkg/database.LoadConfigFromEnv and cmd/eap's newRedisClient, which
// remain the single source of truth for those two; they are not duplicated
// here) and validates the result against Environment.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Environment: Environment(getEnvOrDefault("ENVIRONMENT", string(EnvironmentDev))),

		OIDCIssuerURL: os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:  os.Getenv("OIDC_AUDIENCE"),
		JWKSLocalPath: os.Getenv("JWKS_LOCAL_PATH"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TokenBudgetDaily:   getEnvInt("TOKEN_BUDGET_DAILY", 0),
		TokenBudgetMonthly: getEnvInt("TOKEN_BUDGET_MONTHLY", 0),

		MFAEnabled:    getEnvBool("MFA_ENABLED", false),
		MFAStaticCode: os.Getenv("MFA_STATIC_CODE"),

		WebhookURL:   os.Getenv("WEBHOOK_URL"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		ModelLight:    getEnvOrDefault("MODEL_LIGHT", "claude-haiku-4"),
		ModelStandard: getEnvOrDefault("MODEL_STANDARD", "claude-sonnet-4"),
		ModelHeavy:    getEnvOrDefault("MODEL_HEAVY", "claude-opus-4"),

		CORSAllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      os.Getenv("PUBLIC_BASE_URL"),
	}

	connectors, err := parseConnectors(os.Getenv("CONNECTORS"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONNECTORS: %w", err)
	}
	cfg.Connectors = connectors

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency and, for EnvironmentProd, refuses
// the insecure defaults that dev/test are allowed to run with: a missing
// OIDC audience would accept a validly-signed token from any client, and a
// wildcard CORS origin would let any origin make credentialed requests.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvironmentDev, EnvironmentTest, EnvironmentProd:
	default:
		return fmt.Errorf("ENVIRONMENT must be one of dev, test, prod (got %q)", c.Environment)
	}

	if c.IsProd() {
		if c.OIDCAudience == "" {
			return fmt.Errorf("OIDC_AUDIENCE is required in prod")
		}
		if c.OIDCIssuerURL == "" && c.JWKSLocalPath == "" {
			return fmt.Errorf("one of OIDC_ISSUER_URL or JWKS_LOCAL_PATH is required in prod")
		}
		for _, origin := range c.CORSAllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOWED_ORIGINS cannot include \"*\" in prod")
			}
		}
		if c.MFAEnabled && c.MFAStaticCode == "" {
			return fmt.Errorf("MFA_STATIC_CODE is required in prod when MFA_ENABLED=true")
		}
	}

	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE cannot be negative")
	}
	return nil
}

func parseConnectors(raw string) ([]ConnectorConfig, error) {
	if raw == "" {
		return nil, nil
	}
	var connectors []ConnectorConfig
	if err := json.Unmarshal([]byte(raw), &connectors); err != nil {
		return nil, err
	}
	return connectors, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
