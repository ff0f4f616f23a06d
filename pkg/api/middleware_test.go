package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/config"
	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSecurityHeaders(t *testing.T) {
	e := gin.New()
	e.Use(securityHeaders("dev"))
	e.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS must not be sent outside prod")
}

func TestSecurityHeaders_HSTSOnlyInProd(t *testing.T) {
	e := gin.New()
	e.Use(securityHeaders("prod"))
	e.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "max-age=63072000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

type fakeValidator struct {
	principal *Principal
	err       error
}

func (f *fakeValidator) Validate(tokenStr string) (*Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func TestRequireAuth_MissingHeader_Returns401(t *testing.T) {
	e := gin.New()
	e.Use(requireAuth(&fakeValidator{}))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ValidToken_AttachesPrincipal(t *testing.T) {
	want := &Principal{UserID: uuid.New(), TenantID: uuid.New(), Role: models.RoleOperator}
	var got *Principal

	e := gin.New()
	e.Use(requireAuth(&fakeValidator{principal: want}))
	e.GET("/test", func(c *gin.Context) {
		got = CurrentPrincipal(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.TenantID, got.TenantID)
}

func TestRequireAuth_ValidatorError_Returns401(t *testing.T) {
	e := gin.New()
	e.Use(requireAuth(&fakeValidator{err: errors.New("bad signature")}))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_Exhausted_Returns429WithRetryAfter(t *testing.T) {
	principal := &Principal{UserID: uuid.New(), TenantID: uuid.New(), Role: models.RoleViewer}
	limiter := ratelimit.New(nil, 1, 0)

	e := gin.New()
	e.Use(requireAuth(&fakeValidator{principal: principal}))
	e.Use(rateLimit(limiter))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/test", nil)
		r.Header.Set("Authorization", "Bearer sometoken")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, r)
		return rec
	}

	first := req()
	assert.Equal(t, http.StatusOK, first.Code)

	second := req()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRequireMFA_Disabled_AcceptsAnyNonEmptyCode(t *testing.T) {
	e := gin.New()
	e.Use(requireMFA(testConfigWithMFA(false, "")))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-MFA-Code", "anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireMFA_Disabled_RejectsEmptyCode(t *testing.T) {
	e := gin.New()
	e.Use(requireMFA(testConfigWithMFA(false, "")))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireMFA_Enabled_RejectsWrongCode(t *testing.T) {
	e := gin.New()
	e.Use(requireMFA(testConfigWithMFA(true, "123456")))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-MFA-Code", "000000")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireMFA_Enabled_AcceptsMatchingCode(t *testing.T) {
	e := gin.New()
	e.Use(requireMFA(testConfigWithMFA(true, "123456")))
	e.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-MFA-Code", "123456")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func testConfigWithMFA(enabled bool, staticCode string) config.Config {
	return config.Config{MFAEnabled: enabled, MFAStaticCode: staticCode}
}

func TestRequirePermission_InsufficientRole_Returns403(t *testing.T) {
	e := gin.New()
	e.Use(requireAuth(&fakeValidator{principal: &Principal{UserID: uuid.New(), TenantID: uuid.New(), Role: models.RoleViewer}}))
	e.GET("/admin", requirePermission("admin.tenant.write"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
