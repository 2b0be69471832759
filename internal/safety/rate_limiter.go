package safety

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a named token bucket in front of one group of exchange endpoints.
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
}

// NewRateLimiter allows burst requests at once and refills perSecond tokens every second.
func NewRateLimiter(name string, burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{name: name, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Name returns the limiter name.
func (rl *RateLimiter) Name() string { return rl.name }

// Allow reports whether a request may run right now.
func (rl *RateLimiter) Allow() bool { return rl.limiter.Allow() }

// Wait blocks until a request may run or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error { return rl.limiter.Wait(ctx) }

// RateLimiterManager hands out one limiter per endpoint group.
type RateLimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewRateLimiterManager creates an empty manager.
func NewRateLimiterManager() *RateLimiterManager {
	return &RateLimiterManager{limiters: make(map[string]*RateLimiter)}
}

// GetOrCreate gets an existing limiter or creates a new one
func (m *RateLimiterManager) GetOrCreate(name string, burst int, perSecond float64) *RateLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rl, ok := m.limiters[name]; ok {
		return rl
	}
	rl := NewRateLimiter(name, burst, perSecond)
	m.limiters[name] = rl
	return rl
}
