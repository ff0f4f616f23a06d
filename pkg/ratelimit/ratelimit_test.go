package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Unlimited_AlwaysAllows(t *testing.T) {
	limiter := New(nil, 0, 0)
	result, err := limiter.Check(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheck_NoRedis_UsesInMemoryFallback(t *testing.T) {
	limiter := New(nil, 60, 0)
	userID := uuid.New()

	result, err := limiter.Check(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 60, result.Limit)
}

func TestResult_Headers_NeverNegativeRemaining(t *testing.T) {
	r := Result{Limit: 10, Remaining: -5}
	headers := r.Headers()
	assert.Equal(t, "0", headers["X-RateLimit-Remaining"])
	assert.Equal(t, "10", headers["X-RateLimit-Limit"])
}

func TestResult_RetryAfterSeconds_AtLeastOne(t *testing.T) {
	r := Result{ResetAt: time.Now().Add(-time.Second)}
	assert.Equal(t, 1, r.RetryAfterSeconds())
}

func TestResult_RetryAfterSeconds_ReflectsWindow(t *testing.T) {
	r := Result{ResetAt: time.Now().Add(30 * time.Second)}
	assert.InDelta(t, 30, r.RetryAfterSeconds(), 1)
}

func TestKey_ScopesPerTenantWhenProvided(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	withoutTenant := key(userID, nil)
	withTenant := key(userID, &tenantID)

	assert.Contains(t, withoutTenant, "rate_limit:user:")
	assert.Contains(t, withTenant, tenantID.String())
	assert.NotEqual(t, withoutTenant, withTenant)
}

func TestInMemoryLimiter_ExhaustsBurstThenBlocks(t *testing.T) {
	l := newInMemoryLimiter(2)
	userID := uuid.New()

	assert.True(t, l.Allow(userID))
	assert.True(t, l.Allow(userID))
	assert.False(t, l.Allow(userID))
}

func TestInMemoryLimiter_ResetRestoresBudget(t *testing.T) {
	l := newInMemoryLimiter(1)
	userID := uuid.New()

	assert.True(t, l.Allow(userID))
	assert.False(t, l.Allow(userID))

	l.Reset(userID)
	assert.True(t, l.Allow(userID))
}
