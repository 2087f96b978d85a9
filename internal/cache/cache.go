// Package cache implements the two-tier cache the recommendation
// service and model updater share: a bounded in-process L1 with
// single-flight coalescing, backed by a distributed Redis L2.
package cache

import (
	"context"
	"time"
)

// Cache is the distributed (L2) cache contract, grounded on the
// teacher's pkg/cache.Cache interface, extended with DeletePattern —
// the model updater invalidates whole key families
// (`rec:{user}:*`, `trending:{tenant}:*`) rather than single keys.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// ErrNotFound is returned by Get on a cache miss, grounded on the
// teacher's pkg/cache.ErrNotFound sentinel.
var ErrNotFound = cacheError("cache: key not found")

type cacheError string

func (e cacheError) Error() string { return string(e) }
