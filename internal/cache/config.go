package cache

import "time"

// RedisConfig is the teacher's pkg/cache.RedisConfig trimmed to the
// fields this module exercises (no IAM/TLS branch — see DESIGN.md).
type RedisConfig struct {
	Address      string
	Password     string
	Database     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
}

// NewRedisConfig returns defaults matching the teacher's
// ConvertFromCommonRedisConfig fallback values.
func NewRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// TwoTierConfig sizes the L1 coalescing layer per spec.md §4.6.
type TwoTierConfig struct {
	L1Capacity int
	L1TTL      time.Duration
	L2TTL      time.Duration
}

func NewTwoTierConfig() TwoTierConfig {
	return TwoTierConfig{
		L1Capacity: 10_000,
		L1TTL:      30 * time.Second,
		L2TTL:      30 * time.Second,
	}
}
