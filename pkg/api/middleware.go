package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/config"
	"github.com/codeready-toolchain/eap/pkg/policy"
	"github.com/codeready-toolchain/eap/pkg/ratelimit"
)

// Validator authenticates a bearer token string into a Principal. Satisfied
// by *JWKSValidator; the indirection lets tests inject a fake without
// standing up a JWKS endpoint.
type Validator interface {
	Validate(tokenStr string) (*Principal, error)
}

// requireAuth rejects any request without a valid Bearer token, attaching
// the resulting Principal to the gin.Context for downstream handlers.
func requireAuth(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, http.StatusUnauthorized, "missing Authorization header")
			c.Abort()
			return
		}

		tokenStr, ok := bearerToken(authHeader)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		principal, err := validator.Validate(tokenStr)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// requirePermission aborts with 403 unless the caller's role satisfies perm
// (policy.CheckPermission returns only apperr.ErrForbidden; cross-tenant 404s
// come from the tenant-scoped lookups in the handlers).
func requirePermission(perm policy.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		if err := policy.CheckPermission(p.Role, perm); err != nil {
			respondServiceError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// securityHeaders sets standard hardening response headers, matching the
// teacher's echo middleware one-for-one in substance. HSTS is only sent in
// the prod environment (spec §6): advertising it in dev/test would pin
// plain-HTTP local setups into a browser's HSTS cache.
func securityHeaders(environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if environment == "prod" {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		c.Next()
	}
}

// corsMiddleware enforces the CORS policy from spec §6: in prod, only
// origins in allowedOrigins are reflected back; in dev/test, an empty
// allowedOrigins list reflects whatever Origin the caller sent, the way
// local frontend dev servers on arbitrary ports expect.
func corsMiddleware(allowedOrigins []string, relaxed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if relaxed && len(allowedOrigins) == 0 {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			} else if slices.Contains(allowedOrigins, origin) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			}
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireMFA gates a route behind a second factor when MFA is enabled. Per
// spec §6, when MFA is disabled any non-empty X-MFA-Code value is accepted
// (the check exists but isn't enforced); when enabled, the code must match
// the configured static code.
//
// TODO: replace the static shared code with per-user TOTP once an MFA
// enrollment flow exists.
func requireMFA(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.GetHeader("X-MFA-Code")
		if code == "" {
			respondError(c, http.StatusUnauthorized, "X-MFA-Code header is required")
			c.Abort()
			return
		}
		if cfg.MFAEnabled && code != cfg.MFAStaticCode {
			respondError(c, http.StatusUnauthorized, "invalid MFA code")
			c.Abort()
			return
		}
		c.Next()
	}
}

const requestIDHeader = "X-Request-ID"

// requestID assigns a short request id (req_<16 hex>) to every request that
// doesn't already carry one upstream, echoing it back in the response so
// clients can correlate logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			u := uuid.New()
			id = fmt.Sprintf("req_%x", u[:8])
		}
		c.Set("api.request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// rateLimit checks the authenticated caller against limiter, rejecting with
// 429 and the standard X-RateLimit-* headers on exhaustion. Runs after
// requireAuth; a request with no Principal attached is let through since
// that means requireAuth already rejected it.
func rateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		result, err := limiter.Check(ctx, p.UserID, &p.TenantID)
		if err != nil {
			c.Next()
			return
		}
		for k, v := range result.Headers() {
			c.Writer.Header().Set(k, v)
		}
		if !result.Allowed {
			c.Writer.Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfterSeconds()))
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// respondServiceError maps a service-layer error (apperr sentinels or
// *apperr.ValidationError) to the matching HTTP status, the gin equivalent
// of the teacher's mapServiceError.
func respondServiceError(c *gin.Context, err error) {
	status, message := mapServiceError(err)
	respondError(c, status, message)
}
