package engine

import (
	"fmt"
	"time"
)

// Cache TTLs for the three recommendation result families, matching the
// original implementation's per-algorithm cache lifetimes.
const (
	trendingCacheTTL = time.Hour
	contentCacheTTL  = 5 * time.Minute
	hybridCacheTTL   = 5 * time.Minute
)

// trendingCacheKey builds the cache key for a tenant's trending-entity
// list. The original Rust sources disagree on this format:
// engine/collaborative.rs and storage/cache.rs key trending results as
// "trending:{type}:{count}" with no tenant at all, while
// service/model_updater.rs and service/recommendation.rs (the call sites
// that actually own cache population and invalidation) key it as
// "trending:{tenant}:{type}:{count}". Since trending stats are themselves
// computed from a tenant-scoped interaction window, the untenanted form
// would leak one tenant's trending list into another's response; this
// module always includes the tenant, matching the service-layer format.
func trendingCacheKey(tenantID, entityType string, count int) string {
	t := entityType
	if t == "" {
		t = "all"
	}
	return fmt.Sprintf("trending:%s:%s:%d", tenantID, t, count)
}

// trendingInvalidationPattern matches every cached trending key for a
// tenant, used by the model updater after a trending recompute.
func trendingInvalidationPattern(tenantID string) string {
	return fmt.Sprintf("trending:%s:*", tenantID)
}

func contentRecCacheKey(tenantID, entityID, entityType string, count int) string {
	return fmt.Sprintf("content_rec:%s:%s:%s:%d", tenantID, entityID, entityType, count)
}

func hybridRecCacheKey(tenantID, userID, entityType string, count int) string {
	t := entityType
	if t == "" {
		t = "all"
	}
	return fmt.Sprintf("hybrid_rec:%s:%s:%s:%d", tenantID, userID, t, count)
}
