package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentDev, cfg.Environment)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, "claude-sonnet-4", cfg.ModelStandard)
}

func TestValidate_ProdRequiresOIDCAudience(t *testing.T) {
	cfg := Config{Environment: EnvironmentProd, OIDCIssuerURL: "https://issuer.example"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OIDC_AUDIENCE")
}

func TestValidate_ProdRejectsWildcardCORS(t *testing.T) {
	cfg := Config{
		Environment:        EnvironmentProd,
		OIDCAudience:       "eap-api",
		OIDCIssuerURL:      "https://issuer.example",
		CORSAllowedOrigins: []string{"*"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS_ALLOWED_ORIGINS")
}

func TestValidate_ProdAllowsWildcardFreeConfig(t *testing.T) {
	cfg := Config{
		Environment:        EnvironmentProd,
		OIDCAudience:       "eap-api",
		OIDCIssuerURL:      "https://issuer.example",
		CORSAllowedOrigins: []string{"https://app.example.com"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DevAllowsMissingOIDCAudience(t *testing.T) {
	cfg := Config{Environment: EnvironmentDev}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProdMFAEnabledRequiresStaticCode(t *testing.T) {
	cfg := Config{
		Environment:   EnvironmentProd,
		OIDCAudience:  "eap-api",
		OIDCIssuerURL: "https://issuer.example",
		MFAEnabled:    true,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MFA_STATIC_CODE")
}

func TestParseConnectors_ParsesJSONArray(t *testing.T) {
	connectors, err := parseConnectors(`[{"name":"crm","endpoint":"https://crm.example/api","auth_type":"bearer","auth_value":"tok"}]`)
	require.NoError(t, err)
	require.Len(t, connectors, 1)
	assert.Equal(t, "crm", connectors[0].Name)
	assert.Equal(t, ConnectorAuthBearer, connectors[0].AuthType)
}

func TestParseConnectors_EmptyIsNil(t *testing.T) {
	connectors, err := parseConnectors("")
	require.NoError(t, err)
	assert.Nil(t, connectors)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b"))
	assert.Nil(t, splitCSV(""))
}
