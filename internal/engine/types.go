// Package engine implements the three recommendation algorithms
// (collaborative, content-based, hybrid) over internal/vectorstore,
// grounded on original_source/crates/engine's CollaborativeFilteringEngine,
// ContentBasedFilteringEngine, and HybridEngine.
package engine

import "github.com/vasilistotskas/recommendation-engine/internal/vectorstore"

// ScoredEntity is a recommendation candidate paired with its score and a
// short human-readable justification, returned to the recommendation
// service for serialization.
type ScoredEntity struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	Score      float32 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
}

func fromScoredEntity(s vectorstore.Scored[*vectorstore.Entity]) ScoredEntity {
	return ScoredEntity{
		EntityID:   s.Item.EntityID,
		EntityType: s.Item.EntityType,
		Score:      float32(s.Score),
	}
}
