// Package config loads the platform's environment-driven configuration
// surface, the way pkg/database's Config/LoadConfigFromEnv/Validate does for
// the database pool, generalized to every option the platform recognizes.
package config

// Environment selects which of the platform's three deployment postures is
// active. Validate refuses insecure defaults (missing OIDC audience, a
// wildcard CORS origin, MFA enabled with no static code) once Environment is
// EnvironmentProd.
type Environment string

const (
	EnvironmentDev  Environment = "dev"
	EnvironmentTest Environment = "test"
	EnvironmentProd Environment = "prod"
)

// ConnectorAuthType names how a connector endpoint authenticates outbound
// calls.
type ConnectorAuthType string

const (
	ConnectorAuthBasic  ConnectorAuthType = "basic"
	ConnectorAuthBearer ConnectorAuthType = "bearer"
	ConnectorAuthAPIKey ConnectorAuthType = "api_key"
)

// ConnectorConfig is one externally configured connector endpoint. No
// Connector component exists among the platform's modules today, so this is
// parsed and validated as a recognized option but not consumed by any
// runtime component; see SPEC_FULL.md.
type ConnectorConfig struct {
	Name      string            `json:"name"`
	Endpoint  string            `json:"endpoint"`
	AuthType  ConnectorAuthType `json:"auth_type"`
	AuthValue string            `json:"auth_value"`
}

// Config is every environment-configuration option the platform recognizes.
// Some fields (SMTP, webhook URL, connectors, public base URL) are parsed
// and validated but have no behavioral effect: see SPEC_FULL.md for the
// per-field wired/parsed-only accounting.
type Config struct {
	Environment Environment

	OIDCIssuerURL string
	OIDCAudience  string
	JWKSLocalPath string

	RateLimitPerMinute int
	TokenBudgetDaily   int
	TokenBudgetMonthly int

	MFAEnabled    bool
	MFAStaticCode string

	WebhookURL   string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	Connectors []ConnectorConfig

	ModelLight    string
	ModelStandard string
	ModelHeavy    string

	CORSAllowedOrigins []string
	PublicBaseURL      string
}

// IsProd reports whether production-only hardening (HSTS, strict CORS,
// mandatory OIDC audience) should be enforced.
func (c Config) IsProd() bool {
	return c.Environment == EnvironmentProd
}
