package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPeriod is the default refill period for rate limiters.
var DefaultPeriod = time.Minute

// RateLimiterConfig configures a token-bucket rate limiter.
type RateLimiterConfig struct {
	Limit       int           // Maximum requests per Period
	Period      time.Duration // Refill period
	BurstFactor int           // Burst capacity as a multiple of Limit
}

// RateLimiter is a token-bucket rate limiter, backed by golang.org/x/time/rate
// so the refill math (partial-token accumulation, monotonic clock use) comes
// from a library rather than a hand-rolled timer loop.
type RateLimiter struct {
	name    string
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(name string, config RateLimiterConfig) *RateLimiter {
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	if config.Limit <= 0 {
		config.Limit = 100
	}
	if config.BurstFactor <= 0 {
		config.BurstFactor = 1
	}

	ratePerSecond := float64(config.Limit) / config.Period.Seconds()
	burst := config.Limit * config.BurstFactor

	return &RateLimiter{
		name:    name,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Allow reports whether a single request may proceed now, consuming a token
// if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowN reports whether n requests may proceed now, consuming n tokens if
// so. Used for batched operations (e.g. bulk interaction ingestion).
func (r *RateLimiter) AllowN(n int) bool {
	return r.limiter.AllowN(time.Now(), n)
}

// RateLimiterManager manages named rate limiters, creating them lazily with
// a default configuration on first access.
type RateLimiterManager struct {
	limiters map[string]*RateLimiter
	mutex    sync.RWMutex
}

// NewRateLimiterManager creates a manager seeded with the given named
// configurations.
func NewRateLimiterManager(defaultConfigs map[string]RateLimiterConfig) *RateLimiterManager {
	manager := &RateLimiterManager{limiters: make(map[string]*RateLimiter)}
	for name, config := range defaultConfigs {
		manager.limiters[name] = NewRateLimiter(name, config)
	}
	return manager
}

// GetRateLimiter returns the named limiter, creating one with a
// conservative default (100 requests/minute, burst factor 3) if absent.
func (m *RateLimiterManager) GetRateLimiter(name string) *RateLimiter {
	m.mutex.RLock()
	limiter, exists := m.limiters[name]
	m.mutex.RUnlock()
	if exists {
		return limiter
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if limiter, exists = m.limiters[name]; exists {
		return limiter
	}

	limiter = NewRateLimiter(name, RateLimiterConfig{Limit: 100, Period: time.Minute, BurstFactor: 3})
	m.limiters[name] = limiter
	return limiter
}
