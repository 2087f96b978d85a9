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

// ContentConfig tunes the content-based (feature-vector similarity)
// filter.
type ContentConfig struct {
	SimilarityThreshold float32
	DefaultCount         int
}

func DefaultContentConfig() ContentConfig {
	return ContentConfig{SimilarityThreshold: 0.5, DefaultCount: 10}
}

// ContentEngine recommends entities by pgvector cosine similarity over
// feature vectors, either anchored to another entity or aggregated over
// a user's recent interaction history.
type ContentEngine struct {
	store   *vectorstore.Store
	cache   cache.Cache
	config  ContentConfig
	logger  observability.Logger
	metrics observability.MetricsClient
}

func NewContentEngine(store *vectorstore.Store, c cache.Cache, config ContentConfig, logger observability.Logger, metrics observability.MetricsClient) *ContentEngine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &ContentEngine{store: store, cache: c, config: config, logger: logger.WithPrefix("content-engine"), metrics: metrics}
}

// FindSimilarEntities returns entities of entityType nearest to entityID
// in feature-vector space, excluding entityID itself.
func (e *ContentEngine) FindSimilarEntities(ctx context.Context, tenantID, entityID, entityType string, count int) ([]vectorstore.Scored[*vectorstore.Entity], error) {
	entity, err := e.store.GetEntity(ctx, tenantID, entityID, entityType)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, rerrors.Newf(rerrors.KindEntityNotFound, "entity not found: entity_id=%s, entity_type=%s", entityID, entityType)
	}
	if len(entity.FeatureVector) == 0 {
		return nil, rerrors.Newf(rerrors.KindVectorError, "entity %s has no feature vector", entityID)
	}

	return e.store.FindSimilarEntities(ctx, tenantID, entity.FeatureVector, entityType, float64(e.config.SimilarityThreshold), count, entityID)
}

// GenerateRecommendations returns the top count entities most similar to
// entityID, cached for contentCacheTTL.
func (e *ContentEngine) GenerateRecommendations(ctx context.Context, tenantID, entityID, entityType string, count int) ([]ScoredEntity, error) {
	cacheKey := contentRecCacheKey(tenantID, entityID, entityType, count)

	var cached []ScoredEntity
	if e.cache != nil {
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			e.logger.Debug("returning cached content-based recommendations", map[string]interface{}{"cache_key": cacheKey})
			return cached, nil
		}
	}

	similar, err := e.FindSimilarEntities(ctx, tenantID, entityID, entityType, count)
	if err != nil {
		return nil, err
	}

	recs := make([]ScoredEntity, 0, len(similar))
	for _, s := range similar {
		recs = append(recs, ScoredEntity{
			EntityID:   s.Item.EntityID,
			EntityType: s.Item.EntityType,
			Score:      float32(s.Score),
			Reason:     fmt.Sprintf("Similar to %s (similarity: %.2f)", entityID, s.Score),
		})
	}

	if e.cache != nil {
		_ = e.cache.Set(ctx, cacheKey, recs, contentCacheTTL)
	}

	return recs, nil
}

// GenerateUserRecommendations aggregates entity-to-entity similarity
// from the user's 20 most recent interactions, weighting each similar
// entity by the originating interaction's weight, excluding entities the
// user has already interacted with.
func (e *ContentEngine) GenerateUserRecommendations(ctx context.Context, tenantID, userID, entityType string, count int) ([]ScoredEntity, error) {
	interactions, err := e.store.GetUserInteractions(ctx, tenantID, userID, 20, 0)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		e.logger.Debug("no interactions found, cannot generate content-based recommendations", map[string]interface{}{"user_id": userID})
		return nil, nil
	}

	exclude := make(map[string]bool, len(interactions))
	for _, in := range interactions {
		exclude[in.EntityID] = true
	}

	scores := make(map[string]float32)
	types := make(map[string]string)

	for _, in := range interactions {
		if in.EntityType != entityType {
			continue
		}
		similar, err := e.FindSimilarEntities(ctx, tenantID, in.EntityID, entityType, count*2)
		if err != nil {
			continue
		}
		for _, s := range similar {
			if exclude[s.Item.EntityID] {
				continue
			}
			scores[s.Item.EntityID] += float32(s.Score) * in.Weight
			types[s.Item.EntityID] = s.Item.EntityType
		}
	}

	recs := make([]ScoredEntity, 0, len(scores))
	for entityID, score := range scores {
		recs = append(recs, ScoredEntity{EntityID: entityID, EntityType: types[entityID], Score: score, Reason: "Similar to items you liked"})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

// GetColdStartRecommendations recommends entities similar to the
// tenant's top-5 trending entities of entityType, weighted by each
// trending entity's popularity.
func (e *ContentEngine) GetColdStartRecommendations(ctx context.Context, tenantID, entityType string, count int) ([]ScoredEntity, error) {
	trending, err := e.store.GetTrendingEntityStats(ctx, tenantID, entityType, 5, 7)
	if err != nil {
		return nil, err
	}
	if len(trending) == 0 {
		e.logger.Debug("no trending entities found, cannot generate cold start recommendations", map[string]interface{}{"entity_type": entityType})
		return nil, nil
	}

	scores := make(map[string]float32)
	seen := make(map[string]bool)

	for _, t := range trending {
		if seen[t.EntityID] {
			continue
		}
		seen[t.EntityID] = true

		similar, err := e.FindSimilarEntities(ctx, tenantID, t.EntityID, entityType, count*2)
		if err != nil {
			continue
		}
		for _, s := range similar {
			if seen[s.Item.EntityID] {
				continue
			}
			scores[s.Item.EntityID] += float32(s.Score) * float32(t.WeightSum)
		}
	}

	recs := make([]ScoredEntity, 0, len(scores))
	for entityID, score := range scores {
		recs = append(recs, ScoredEntity{EntityID: entityID, EntityType: entityType, Score: score, Reason: "Similar to popular items"})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

// GetRecommendationsWithColdStart falls back to cold-start recommendations
// when entity-anchored generation comes back empty (a brand new entity
// with no established similarity neighborhood) or errors.
func (e *ContentEngine) GetRecommendationsWithColdStart(ctx context.Context, tenantID, entityID, entityType string, count int) ([]ScoredEntity, bool, error) {
	recs, err := e.GenerateRecommendations(ctx, tenantID, entityID, entityType, count)
	if err == nil && len(recs) > 0 {
		return recs, false, nil
	}

	e.logger.Info("entity is in cold start state, returning similar to popular items", map[string]interface{}{"entity_id": entityID})
	coldStart, err := e.GetColdStartRecommendations(ctx, tenantID, entityType, count)
	if err != nil {
		return nil, true, err
	}
	return coldStart, true, nil
}
