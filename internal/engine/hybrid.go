package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
	"github.com/vasilistotskas/recommendation-engine/internal/resilience"
)

// HybridConfig tunes score blending and diversity reshaping.
type HybridConfig struct {
	CollaborativeWeight float32
	ContentWeight        float32
	EnableDiversity      bool
	MinCategories        int
	DefaultCount         int
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{CollaborativeWeight: 0.5, ContentWeight: 0.5, EnableDiversity: true, MinCategories: 3, DefaultCount: 10}
}

// Validate checks that the two weights are non-negative and sum to 1.0
// within a small tolerance.
func (c HybridConfig) Validate() error {
	const tolerance = 0.001
	sum := c.CollaborativeWeight + c.ContentWeight
	if sum-1.0 > tolerance || 1.0-sum > tolerance {
		return rerrors.Newf(rerrors.KindInvalidRequest, "hybrid weights must sum to 1.0, got %v (collaborative: %v, content: %v)", sum, c.CollaborativeWeight, c.ContentWeight)
	}
	if c.CollaborativeWeight < 0 || c.ContentWeight < 0 {
		return rerrors.New(rerrors.KindInvalidRequest, "hybrid weights must be non-negative")
	}
	return nil
}

// HybridEngine combines collaborative and content-based recommendations,
// fanning out into both concurrently behind a shared bulkhead that caps
// concurrent generation at 100 in-flight requests (see
// resilience.DefaultBulkheadConfigs["hybrid_engine"]).
type HybridEngine struct {
	collaborative *CollaborativeEngine
	content       *ContentEngine
	cache         cache.Cache
	config        HybridConfig
	bulkhead      *resilience.Bulkhead
	logger        observability.Logger
	metrics       observability.MetricsClient
}

func NewHybridEngine(collaborative *CollaborativeEngine, content *ContentEngine, c cache.Cache, config HybridConfig, bulkhead *resilience.Bulkhead, logger observability.Logger, metrics observability.MetricsClient) (*HybridEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &HybridEngine{
		collaborative: collaborative,
		content:       content,
		cache:         c,
		config:        config,
		bulkhead:      bulkhead,
		logger:        logger.WithPrefix("hybrid-engine"),
		metrics:       metrics,
	}, nil
}

// GenerateRecommendations runs the collaborative and content-based
// engines concurrently, blends their scores, optionally reshapes for
// category diversity, and returns the top count.
func (e *HybridEngine) GenerateRecommendations(ctx context.Context, tenantID, userID, entityType string, count int) ([]ScoredEntity, error) {
	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return e.generateRecommendationsUnbounded(ctx, tenantID, userID, entityType, count)
	})
	if err != nil {
		return nil, err
	}
	return result.([]ScoredEntity), nil
}

func (e *HybridEngine) generateRecommendationsUnbounded(ctx context.Context, tenantID, userID, entityType string, count int) ([]ScoredEntity, error) {
	cacheKey := hybridRecCacheKey(tenantID, userID, entityType, count)

	var cached []ScoredEntity
	if e.cache != nil {
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			e.logger.Debug("returning cached hybrid recommendations", map[string]interface{}{"cache_key": cacheKey})
			return cached, nil
		}
	}

	contentEntityType := entityType
	if contentEntityType == "" {
		contentEntityType = "product"
	}

	var (
		wg                 sync.WaitGroup
		collabRecs         []ScoredEntity
		collabColdStart    bool
		collabErr          error
		contentRecs        []ScoredEntity
		contentErr         error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		collabRecs, collabColdStart, collabErr = e.collaborative.GetRecommendationsWithColdStart(ctx, tenantID, userID, count*2, entityType)
	}()
	go func() {
		defer wg.Done()
		contentRecs, contentErr = e.content.GenerateUserRecommendations(ctx, tenantID, userID, contentEntityType, count*2)
	}()
	wg.Wait()

	if collabErr != nil {
		return nil, collabErr
	}
	if contentErr != nil {
		e.logger.Warn("content-based recommendations failed, using empty results", map[string]interface{}{"error": contentErr.Error()})
		contentRecs = nil
	}

	if collabColdStart && len(contentRecs) == 0 {
		e.logger.Info("user is in cold start with no content recommendations, returning trending", map[string]interface{}{"user_id": userID})
		if len(collabRecs) > count {
			collabRecs = collabRecs[:count]
		}
		return collabRecs, nil
	}

	combined := e.combineScores(collabRecs, contentRecs, e.config.CollaborativeWeight, e.config.ContentWeight)

	final := combined
	if e.config.EnableDiversity {
		final = e.applyDiversityFilter(combined, e.config.MinCategories)
	}

	sort.Slice(final, func(i, j int) bool { return final[i].Score > final[j].Score })
	if len(final) > count {
		final = final[:count]
	}

	if e.cache != nil {
		_ = e.cache.Set(ctx, cacheKey, final, hybridCacheTTL)
	}

	return final, nil
}

// combineScores min-max normalizes each algorithm's scores to [0,1]
// independently, then computes a weighted average per entity, keeping
// every entity either algorithm surfaced.
func (e *HybridEngine) combineScores(collab, content []ScoredEntity, collabWeight, contentWeight float32) []ScoredEntity {
	normCollab := normalizeScores(collab)
	normContent := normalizeScores(content)

	collabMap := make(map[string]ScoredEntity, len(normCollab))
	for _, s := range normCollab {
		collabMap[s.EntityID] = s
	}
	contentMap := make(map[string]ScoredEntity, len(normContent))
	for _, s := range normContent {
		contentMap[s.EntityID] = s
	}

	seen := make(map[string]bool, len(collabMap)+len(contentMap))
	for id := range collabMap {
		seen[id] = true
	}
	for id := range contentMap {
		seen[id] = true
	}

	combined := make([]ScoredEntity, 0, len(seen))
	for entityID := range seen {
		c, inCollab := collabMap[entityID]
		k, inContent := contentMap[entityID]

		score := c.Score*collabWeight + k.Score*contentWeight

		entityType := c.EntityType
		if entityType == "" {
			entityType = k.EntityType
		}

		var reason string
		switch {
		case inCollab && inContent:
			reason = fmt.Sprintf("Hybrid: %.0f%% collaborative, %.0f%% content similarity", collabWeight*100, contentWeight*100)
		case inCollab:
			reason = "Based on similar users' preferences"
		case inContent:
			reason = "Based on content similarity"
		}

		combined = append(combined, ScoredEntity{EntityID: entityID, EntityType: entityType, Score: score, Reason: reason})
	}

	sort.Slice(combined, func(i, j int) bool { return combined[i].Score > combined[j].Score })
	return combined
}

// normalizeScores min-max normalizes entities' scores to [0,1]. When
// every score is identical, each entity is assigned 1.0 rather than
// dividing by a zero range.
func normalizeScores(entities []ScoredEntity) []ScoredEntity {
	if len(entities) == 0 {
		return entities
	}

	min, max := entities[0].Score, entities[0].Score
	for _, e := range entities {
		if e.Score < min {
			min = e.Score
		}
		if e.Score > max {
			max = e.Score
		}
	}

	out := make([]ScoredEntity, len(entities))
	if max-min < 0.0001 {
		for i, e := range entities {
			e.Score = 1.0
			out[i] = e
		}
		return out
	}

	for i, e := range entities {
		e.Score = (e.Score - min) / (max - min)
		out[i] = e
	}
	return out
}

// applyDiversityFilter greedily selects recommendations across multiple
// entity types: a first pass takes one entity from each new type (up to
// minCategories) to guarantee category spread, a second pass walks the
// rest in score order and keeps an entity only while its type's count is
// at most the running average count per type plus one. Entities that
// fail that check are dropped from the result.
func (e *HybridEngine) applyDiversityFilter(recommendations []ScoredEntity, minCategories int) []ScoredEntity {
	if len(recommendations) == 0 || minCategories == 0 {
		return recommendations
	}

	sorted := make([]ScoredEntity, len(recommendations))
	copy(sorted, recommendations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	seenTypes := make(map[string]int)
	diverse := make([]ScoredEntity, 0, len(sorted))
	var remaining []ScoredEntity

	for _, entity := range sorted {
		if len(seenTypes) < minCategories && seenTypes[entity.EntityType] == 0 {
			seenTypes[entity.EntityType] = 1
			diverse = append(diverse, entity)
		} else {
			remaining = append(remaining, entity)
		}
	}

	for _, entity := range remaining {
		typeCount := seenTypes[entity.EntityType]

		var avgCount float32
		if len(seenTypes) > 0 {
			var total int
			for _, c := range seenTypes {
				total += c
			}
			avgCount = float32(total) / float32(len(seenTypes))
		}

		if float32(typeCount) <= avgCount+1.0 {
			seenTypes[entity.EntityType]++
			diverse = append(diverse, entity)
		}
	}

	return diverse
}

// GenerateEntityRecommendations returns entity-anchored recommendations
// (items similar to entityID). Content similarity drives this path since
// collaborative filtering has no notion of entity-to-entity similarity.
func (e *HybridEngine) GenerateEntityRecommendations(ctx context.Context, tenantID, entityID, entityType string, count int) ([]ScoredEntity, error) {
	return e.content.GenerateRecommendations(ctx, tenantID, entityID, entityType, count)
}
