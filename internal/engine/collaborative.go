package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
)

// coldStartThreshold is the interaction count below which a user is
// treated as cold start: fewer interactions than this (or no profile at
// all) means there isn't enough signal for neighbor-based scoring.
const coldStartThreshold = 5

// maxExclusionInteractions bounds how many of a user's past interactions
// are fetched to build the already-seen exclusion set.
const maxExclusionInteractions = 10000

// CollaborativeConfig tunes the user-based k-NN collaborative filter.
type CollaborativeConfig struct {
	KNeighbors    int
	MinSimilarity float32
	DefaultCount  int
}

func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{KNeighbors: 50, MinSimilarity: 0.1, DefaultCount: 10}
}

// CollaborativeEngine recommends entities by aggregating the weighted
// interactions of a target user's nearest neighbors in preference-vector
// space, falling back to trending entities for cold-start users.
type CollaborativeEngine struct {
	store   *vectorstore.Store
	cache   cache.Cache
	config  CollaborativeConfig
	logger  observability.Logger
	metrics observability.MetricsClient
}

func NewCollaborativeEngine(store *vectorstore.Store, c cache.Cache, config CollaborativeConfig, logger observability.Logger, metrics observability.MetricsClient) *CollaborativeEngine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &CollaborativeEngine{store: store, cache: c, config: config, logger: logger.WithPrefix("collaborative-engine"), metrics: metrics}
}

// FindSimilarUsers returns the target user's k nearest neighbors by
// preference-vector cosine similarity, filtered by MinSimilarity.
func (e *CollaborativeEngine) FindSimilarUsers(ctx context.Context, tenantID, userID string) ([]vectorstore.Scored[*vectorstore.UserProfile], error) {
	profile, err := e.store.GetUserProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, rerrors.Newf(rerrors.KindUserNotFound, "user profile not found for user_id %q", userID)
	}
	if len(profile.PreferenceVector) == 0 {
		e.logger.Debug("user has no preference vector, cannot find similar users", map[string]interface{}{"user_id": userID})
		return nil, nil
	}

	neighbors, err := e.store.FindSimilarUsers(ctx, tenantID, profile.PreferenceVector, e.config.KNeighbors, userID)
	if err != nil {
		return nil, err
	}

	filtered := make([]vectorstore.Scored[*vectorstore.UserProfile], 0, len(neighbors))
	for _, n := range neighbors {
		if float32(n.Score) >= e.config.MinSimilarity {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// IsColdStartUser reports whether userID has fewer than coldStartThreshold
// interactions, or no profile at all.
func (e *CollaborativeEngine) IsColdStartUser(ctx context.Context, tenantID, userID string) (bool, error) {
	profile, err := e.store.GetUserProfile(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return true, nil
	}
	return profile.InteractionCount < coldStartThreshold, nil
}

// GenerateRecommendations aggregates the neighbors' weighted interactions
// into per-entity scores, excluding entities the target user has already
// interacted with, and returns the top count sorted descending.
func (e *CollaborativeEngine) GenerateRecommendations(ctx context.Context, tenantID, userID string, count int, entityType string) ([]ScoredEntity, error) {
	neighbors, err := e.FindSimilarUsers(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		e.logger.Debug("no similar users found", map[string]interface{}{"user_id": userID})
		return nil, nil
	}

	exclude, err := e.userInteractedEntities(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	recs, err := e.aggregateFromNeighbors(ctx, tenantID, neighbors, exclude, entityType)
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

func (e *CollaborativeEngine) userInteractedEntities(ctx context.Context, tenantID, userID string) (map[string]bool, error) {
	interactions, err := e.store.GetUserInteractions(ctx, tenantID, userID, maxExclusionInteractions, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(interactions))
	for _, in := range interactions {
		seen[in.EntityID] = true
	}
	return seen, nil
}

// aggregateFromNeighbors accumulates weight*similarity per entity across
// every neighbor's own interaction history. Unlike the original
// implementation, entity type is read straight off the denormalized
// Interaction row rather than resolved via a secondary entity lookup.
func (e *CollaborativeEngine) aggregateFromNeighbors(ctx context.Context, tenantID string, neighbors []vectorstore.Scored[*vectorstore.UserProfile], exclude map[string]bool, entityTypeFilter string) ([]ScoredEntity, error) {
	type key struct{ entityID, entityType string }
	scores := make(map[key]float32)

	for _, n := range neighbors {
		interactions, err := e.store.GetUserInteractions(ctx, tenantID, n.Item.UserID, 100, 0)
		if err != nil {
			return nil, err
		}
		for _, in := range interactions {
			if exclude[in.EntityID] {
				continue
			}
			if entityTypeFilter != "" && in.EntityType != entityTypeFilter {
				continue
			}
			k := key{in.EntityID, in.EntityType}
			scores[k] += in.Weight * float32(n.Score)
		}
	}

	neighborCount := len(neighbors)
	if neighborCount > 10 {
		neighborCount = 10
	}
	reason := fmt.Sprintf("Liked by %d similar users", neighborCount)

	recs := make([]ScoredEntity, 0, len(scores))
	for k, score := range scores {
		recs = append(recs, ScoredEntity{EntityID: k.entityID, EntityType: k.entityType, Score: score, Reason: reason})
	}
	return recs, nil
}

// GetTrendingEntities returns the entities with the highest interaction
// weight over the trending window, cached per tenant/type/count.
func (e *CollaborativeEngine) GetTrendingEntities(ctx context.Context, tenantID, entityType string, count int) ([]ScoredEntity, error) {
	cacheKey := trendingCacheKey(tenantID, entityType, count)

	var cached []ScoredEntity
	if e.cache != nil {
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			e.logger.Debug("returning cached trending entities", map[string]interface{}{"cache_key": cacheKey})
			return cached, nil
		}
	}

	var typeFilter string
	if entityType != "" && entityType != "all" {
		typeFilter = entityType
	}

	stats, err := e.store.GetTrendingEntityStats(ctx, tenantID, typeFilter, count, 7)
	if err != nil {
		return nil, err
	}

	trending := make([]ScoredEntity, 0, len(stats))
	var maxScore float64
	for _, s := range stats {
		if s.WeightSum > maxScore {
			maxScore = s.WeightSum
		}
	}
	for _, s := range stats {
		score := float32(0)
		if maxScore > 0 {
			score = float32(s.WeightSum / maxScore)
		}
		trending = append(trending, ScoredEntity{EntityID: s.EntityID, EntityType: s.EntityType, Score: score, Reason: "Trending"})
	}

	if e.cache != nil {
		_ = e.cache.Set(ctx, cacheKey, trending, trendingCacheTTL)
	}

	return trending, nil
}

// PrecomputeTrending computes a tenant/type's trending list once at
// the largest requested count and populates the cache for every count
// in counts, so the trending-update background task doesn't repeat the
// underlying aggregation query once per cached list size the way a
// naive loop over GetTrendingEntities would. Returns the number of
// trending entities found (at the largest count).
func (e *CollaborativeEngine) PrecomputeTrending(ctx context.Context, tenantID, entityType string, counts []int) (int, error) {
	if len(counts) == 0 {
		return 0, nil
	}
	maxCount := counts[0]
	for _, c := range counts[1:] {
		if c > maxCount {
			maxCount = c
		}
	}

	var typeFilter string
	if entityType != "" && entityType != "all" {
		typeFilter = entityType
	}

	stats, err := e.store.GetTrendingEntityStats(ctx, tenantID, typeFilter, maxCount, 7)
	if err != nil {
		return 0, err
	}

	full := make([]ScoredEntity, 0, len(stats))
	var maxScore float64
	for _, s := range stats {
		if s.WeightSum > maxScore {
			maxScore = s.WeightSum
		}
	}
	for _, s := range stats {
		score := float32(0)
		if maxScore > 0 {
			score = float32(s.WeightSum / maxScore)
		}
		full = append(full, ScoredEntity{EntityID: s.EntityID, EntityType: s.EntityType, Score: score, Reason: "Trending"})
	}

	if e.cache != nil {
		for _, count := range counts {
			subset := full
			if len(subset) > count {
				subset = subset[:count]
			}
			_ = e.cache.Set(ctx, trendingCacheKey(tenantID, entityType, count), subset, trendingCacheTTL)
		}
	}

	return len(full), nil
}

// InvalidateTrending clears every cached trending-entity list for a
// tenant, called by the model updater after a trending recompute so the
// next read picks up fresh stats instead of serving up to an hour-old
// cached scores.
func (e *CollaborativeEngine) InvalidateTrending(ctx context.Context, tenantID string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.DeletePattern(ctx, trendingInvalidationPattern(tenantID))
}

// GetRecommendationsWithColdStart returns personalized recommendations
// for users with enough signal, trending entities for cold-start users,
// and supplements a short personalized list with trending entities when
// neighbor aggregation alone can't fill count.
func (e *CollaborativeEngine) GetRecommendationsWithColdStart(ctx context.Context, tenantID, userID string, count int, entityType string) ([]ScoredEntity, bool, error) {
	isColdStart, err := e.IsColdStartUser(ctx, tenantID, userID)
	if err != nil {
		return nil, false, err
	}
	if isColdStart {
		trending, err := e.GetTrendingEntities(ctx, tenantID, entityType, count)
		if err != nil {
			return nil, false, err
		}
		return trending, true, nil
	}

	recs, err := e.GenerateRecommendations(ctx, tenantID, userID, count, entityType)
	if err != nil {
		return nil, false, err
	}

	if len(recs) < count {
		needed := count - len(recs)
		trending, err := e.GetTrendingEntities(ctx, tenantID, entityType, needed)
		if err != nil {
			return recs, false, nil
		}
		existing := make(map[string]bool, len(recs))
		for _, r := range recs {
			existing[r.EntityID] = true
		}
		for _, t := range trending {
			if len(recs) >= count {
				break
			}
			if !existing[t.EntityID] {
				recs = append(recs, t)
			}
		}
	}

	return recs, false, nil
}
