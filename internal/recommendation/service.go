// Package recommendation is the façade over the three recommendation
// engines (spec.md §4.6): request validation, algorithm routing, and the
// two-tier response cache keyed `rec:{tenant}:{user}:{entity}:{algo}:{count}`.
package recommendation

import (
	"context"
	"fmt"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/engine"
	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
	"github.com/vasilistotskas/recommendation-engine/internal/tenant"
)

// Algorithm selects which engine serves a request.
type Algorithm string

const (
	AlgorithmCollaborative Algorithm = "collaborative"
	AlgorithmContentBased  Algorithm = "content_based"
	AlgorithmHybrid        Algorithm = "hybrid"
)

// Request is the recommendation service's request envelope: at least one
// of UserID/EntityID is required (both may be set), Algorithm selects
// the engine, Count bounds the result size, EntityType is the optional
// type filter, and the two hybrid weights override the engine's
// configured defaults when Algorithm is Hybrid and both are non-zero.
type Request struct {
	TenantID             string
	UserID               string
	EntityID             string
	EntityType           string
	Algorithm            Algorithm
	Count                int
	HybridCollabWeight   float32
	HybridContentWeight  float32
}

// Response is the cached result envelope.
type Response struct {
	Recommendations []engine.ScoredEntity `json:"recommendations"`
	ColdStart       bool                  `json:"cold_start"`
	Algorithm       string                `json:"algorithm"`
}

// Service wires the three engines behind one validated, cached entry
// point.
type Service struct {
	collaborative *engine.CollaborativeEngine
	content       *engine.ContentEngine
	hybrid        *engine.HybridEngine
	cache         *cache.TwoTier
	logger        observability.Logger
	metrics       observability.MetricsClient
}

func NewService(collaborative *engine.CollaborativeEngine, content *engine.ContentEngine, hybrid *engine.HybridEngine, c *cache.TwoTier, logger observability.Logger, metrics observability.MetricsClient) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{
		collaborative: collaborative,
		content:       content,
		hybrid:        hybrid,
		cache:         c,
		logger:        logger.WithPrefix("recommendation-service"),
		metrics:       metrics,
	}
}

// Validate enforces spec.md §4.6's request-shape invariants.
func Validate(req Request) error {
	if req.UserID == "" && req.EntityID == "" {
		return rerrors.New(rerrors.KindInvalidRequest, "either user_id or entity_id is required")
	}
	if req.Count < 1 || req.Count > 100 {
		return rerrors.Newf(rerrors.KindInvalidRequest, "count must be between 1 and 100, got %d", req.Count)
	}
	if req.Algorithm == AlgorithmHybrid && (req.HybridCollabWeight != 0 || req.HybridContentWeight != 0) {
		cfg := engine.HybridConfig{CollaborativeWeight: req.HybridCollabWeight, ContentWeight: req.HybridContentWeight}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if req.Algorithm == AlgorithmCollaborative && req.UserID == "" {
		return rerrors.New(rerrors.KindInvalidRequest, "collaborative filtering requires user_id")
	}
	if req.Algorithm == AlgorithmContentBased && req.EntityID != "" && req.EntityType == "" {
		return rerrors.New(rerrors.KindInvalidRequest, "content-based filtering by entity_id requires an entity_type filter")
	}
	return nil
}

// GetRecommendations validates, resolves the tenant, and serves req from
// the two-tier cache, computing through the appropriate engine(s) on a
// miss.
func (s *Service) GetRecommendations(ctx context.Context, req Request) (*Response, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	req.TenantID = tenant.Resolve(req.TenantID)

	cacheKey := recCacheKey(req)

	var resp Response
	err := s.cache.GetOrCompute(ctx, cacheKey, &resp, func(ctx context.Context) (interface{}, error) {
		return s.route(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Service) route(ctx context.Context, req Request) (*Response, error) {
	switch req.Algorithm {
	case AlgorithmCollaborative:
		return s.routeCollaborative(ctx, req)
	case AlgorithmContentBased:
		return s.routeContentBased(ctx, req)
	case AlgorithmHybrid:
		return s.routeHybrid(ctx, req)
	default:
		return nil, rerrors.Newf(rerrors.KindInvalidRequest, "unrecognized algorithm %q", req.Algorithm)
	}
}

func (s *Service) routeCollaborative(ctx context.Context, req Request) (*Response, error) {
	recs, coldStart, err := s.collaborative.GetRecommendationsWithColdStart(ctx, req.TenantID, req.UserID, req.Count, req.EntityType)
	if err != nil {
		return nil, err
	}
	return &Response{Recommendations: recs, ColdStart: coldStart, Algorithm: string(AlgorithmCollaborative)}, nil
}

func (s *Service) routeContentBased(ctx context.Context, req Request) (*Response, error) {
	entityType := req.EntityType
	if req.EntityID != "" {
		recs, coldStart, err := s.content.GetRecommendationsWithColdStart(ctx, req.TenantID, req.EntityID, entityType, req.Count)
		if err != nil {
			return nil, err
		}
		return &Response{Recommendations: recs, ColdStart: coldStart, Algorithm: string(AlgorithmContentBased)}, nil
	}

	if entityType == "" {
		entityType = "product"
	}
	recs, err := s.content.GenerateUserRecommendations(ctx, req.TenantID, req.UserID, entityType, req.Count)
	if err != nil {
		return nil, err
	}
	coldStart, err := s.collaborative.IsColdStartUser(ctx, req.TenantID, req.UserID)
	if err != nil {
		return nil, err
	}
	return &Response{Recommendations: recs, ColdStart: coldStart, Algorithm: string(AlgorithmContentBased)}, nil
}

func (s *Service) routeHybrid(ctx context.Context, req Request) (*Response, error) {
	if req.UserID != "" {
		recs, err := s.hybrid.GenerateRecommendations(ctx, req.TenantID, req.UserID, req.EntityType, req.Count)
		if err != nil {
			return nil, err
		}
		coldStart, err := s.collaborative.IsColdStartUser(ctx, req.TenantID, req.UserID)
		if err != nil {
			return nil, err
		}
		return &Response{Recommendations: recs, ColdStart: coldStart, Algorithm: string(AlgorithmHybrid)}, nil
	}

	if req.EntityID == "" {
		return nil, rerrors.New(rerrors.KindInvalidRequest, "either user_id or entity_id is required for hybrid filtering")
	}

	entityType := req.EntityType
	if entityType == "" {
		entityType = "product"
	}
	recs, err := s.hybrid.GenerateEntityRecommendations(ctx, req.TenantID, req.EntityID, entityType, req.Count)
	if err != nil {
		return nil, err
	}
	return &Response{Recommendations: recs, ColdStart: false, Algorithm: string(AlgorithmHybrid)}, nil
}

func recCacheKey(req Request) string {
	return fmt.Sprintf("rec:%s:%s:%s:%s:%d", req.TenantID, req.UserID, req.EntityID, req.Algorithm, req.Count)
}

// InvalidateUser deletes every cached recommendation for a user, called
// by the model updater after a preference-vector recompute.
func (s *Service) InvalidateUser(ctx context.Context, tenantID, userID string) error {
	return s.cache.InvalidatePattern(ctx, fmt.Sprintf("rec:%s:%s:*", tenant.Resolve(tenantID), userID))
}
