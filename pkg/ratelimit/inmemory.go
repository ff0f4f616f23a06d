package ratelimit

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// inMemoryLimiter is the fallback used when Redis is unreachable: one
// token-bucket limiter per user, refilled continuously at burst tokens per
// minute. It trades sliding-
// window precision for availability — good enough to keep a single node
// from being hammered while Redis recovers.
type inMemoryLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	burst    int
}

func newInMemoryLimiter(burst int) *inMemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &inMemoryLimiter{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		burst:    burst,
	}
}

// ratePerSecond approximates "burst requests per minute" as a steady-state
// token refill rate.
func (l *inMemoryLimiter) ratePerSecond() rate.Limit {
	return rate.Limit(float64(l.burst) / 60.0)
}

func (l *inMemoryLimiter) limiterFor(userID uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.ratePerSecond(), l.burst)
		l.limiters[userID] = lim
	}
	return lim
}

// Allow reports whether userID's next request fits within the fallback
// budget.
func (l *inMemoryLimiter) Allow(userID uuid.UUID) bool {
	return l.limiterFor(userID).Allow()
}

// Reset drops userID's bucket so its next request starts fresh.
func (l *inMemoryLimiter) Reset(userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, userID)
}
