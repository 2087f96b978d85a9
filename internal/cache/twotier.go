package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

// TwoTier is the recommendation service's cache per spec.md §4.6: a
// bounded, TTL'd in-process L1 doing single-flight request coalescing
// in front of a distributed L2. Concurrent callers for the same key
// observe one computation, not one-per-caller — the contract spec.md
// requires and the teacher never needed, since its own request path
// has no equivalent "many callers, one expensive recompute" shape.
type TwoTier struct {
	l1      *lru.LRU[string, []byte]
	l2      Cache
	group   singleflight.Group
	l2TTL   time.Duration
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewTwoTier constructs the cache. l2 may be nil, in which case the
// cache degrades to L1-only (used by callers without a Redis
// dependency configured, e.g. local development).
func NewTwoTier(cfg TwoTierConfig, l2 Cache, logger observability.Logger, metrics observability.MetricsClient) *TwoTier {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &TwoTier{
		l1:      lru.NewLRU[string, []byte](cfg.L1Capacity, nil, cfg.L1TTL),
		l2:      l2,
		l2TTL:   cfg.L2TTL,
		logger:  logger,
		metrics: metrics,
	}
}

// GetOrCompute returns the cached value for key, or runs compute
// exactly once across all concurrent callers sharing that key,
// populating both cache tiers with the result before returning.
func (t *TwoTier) GetOrCompute(ctx context.Context, key string, value interface{}, compute func(ctx context.Context) (interface{}, error)) error {
	if raw, ok := t.l1.Get(key); ok {
		t.metrics.RecordCounter("cache_hit_total", 1, map[string]string{"tier": "l1"})
		return json.Unmarshal(raw, value)
	}

	if t.l2 != nil {
		if err := t.l2.Get(ctx, key, value); err == nil {
			t.metrics.RecordCounter("cache_hit_total", 1, map[string]string{"tier": "l2"})
			if raw, merr := json.Marshal(value); merr == nil {
				t.l1.Add(key, raw)
			}
			return nil
		} else if err != ErrNotFound {
			t.logger.Warn("l2 cache read failed, falling through to compute", map[string]interface{}{"error": err.Error(), "key": key})
		}
	}

	t.metrics.RecordCounter("cache_miss_total", 1, nil)

	resultAny, err, _ := t.group.Do(key, func() (interface{}, error) {
		return compute(ctx)
	})
	if err != nil {
		return err
	}

	raw, err := json.Marshal(resultAny)
	if err != nil {
		return err
	}
	t.l1.Add(key, raw)
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, resultAny, t.l2TTL); err != nil {
			t.logger.Warn("l2 cache write failed", map[string]interface{}{"error": err.Error(), "key": key})
		}
	}

	return json.Unmarshal(raw, value)
}

// Invalidate removes key from both tiers.
func (t *TwoTier) Invalidate(ctx context.Context, key string) error {
	t.l1.Remove(key)
	if t.l2 != nil {
		return t.l2.Delete(ctx, key)
	}
	return nil
}

// InvalidatePattern clears every L2 key matching pattern. L1 entries
// expire on their own short TTL, so they are not scanned — a 30s-old
// stale coalescing entry is an accepted cost of not plumbing pattern
// matching into the L1 LRU.
func (t *TwoTier) InvalidatePattern(ctx context.Context, pattern string) error {
	if t.l2 == nil {
		return nil
	}
	return t.l2.DeletePattern(ctx, pattern)
}
