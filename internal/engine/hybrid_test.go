package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHybridConfig_ValidateRejectsNonUnitWeights(t *testing.T) {
	cfg := HybridConfig{CollaborativeWeight: 0.5, ContentWeight: 0.6}
	assert.Error(t, cfg.Validate())
}

func TestHybridConfig_ValidateRejectsNegativeWeight(t *testing.T) {
	cfg := HybridConfig{CollaborativeWeight: 1.2, ContentWeight: -0.2}
	assert.Error(t, cfg.Validate())
}

func TestHybridConfig_ValidateAcceptsUnitWeights(t *testing.T) {
	cfg := DefaultHybridConfig()
	assert.NoError(t, cfg.Validate())
}

func TestNormalizeScores_MinMaxScalesToUnitRange(t *testing.T) {
	entities := []ScoredEntity{
		{EntityID: "a", Score: 0},
		{EntityID: "b", Score: 5},
		{EntityID: "c", Score: 10},
	}
	out := normalizeScores(entities)
	assert.Equal(t, float32(0), out[0].Score)
	assert.Equal(t, float32(0.5), out[1].Score)
	assert.Equal(t, float32(1), out[2].Score)
}

func TestNormalizeScores_IdenticalScoresAllMapToOne(t *testing.T) {
	entities := []ScoredEntity{{EntityID: "a", Score: 3}, {EntityID: "b", Score: 3}}
	out := normalizeScores(entities)
	for _, e := range out {
		assert.Equal(t, float32(1), e.Score)
	}
}

func TestNormalizeScores_EmptyInput(t *testing.T) {
	assert.Empty(t, normalizeScores(nil))
}

func (e *HybridEngine) exportCombineScores(collab, content []ScoredEntity) []ScoredEntity {
	return e.combineScores(collab, content, e.config.CollaborativeWeight, e.config.ContentWeight)
}

func TestHybridEngine_CombineScoresWeightsAndMergesBothSources(t *testing.T) {
	eng := &HybridEngine{config: HybridConfig{CollaborativeWeight: 0.6, ContentWeight: 0.4}}

	collab := []ScoredEntity{{EntityID: "x", EntityType: "product", Score: 1}, {EntityID: "y", EntityType: "product", Score: 0}}
	content := []ScoredEntity{{EntityID: "x", EntityType: "product", Score: 1}, {EntityID: "z", EntityType: "product", Score: 1}}

	combined := eng.exportCombineScores(collab, content)

	byID := make(map[string]ScoredEntity, len(combined))
	for _, c := range combined {
		byID[c.EntityID] = c
	}

	assert.Contains(t, byID, "x")
	assert.Contains(t, byID, "y")
	assert.Contains(t, byID, "z")
	// x appears in both sources at normalized score 1 in each: 0.6*1 + 0.4*1 = 1.0
	assert.InDelta(t, 1.0, byID["x"].Score, 0.001)
	assert.Contains(t, byID["x"].Reason, "Hybrid")
	assert.Equal(t, "Based on similar users' preferences", byID["y"].Reason)
	assert.Equal(t, "Based on content similarity", byID["z"].Reason)
}

func TestHybridEngine_ApplyDiversityFilterSpansCategoriesFirst(t *testing.T) {
	eng := &HybridEngine{}
	recs := []ScoredEntity{
		{EntityID: "a1", EntityType: "product", Score: 10},
		{EntityID: "a2", EntityType: "product", Score: 9},
		{EntityID: "a3", EntityType: "product", Score: 8},
		{EntityID: "b1", EntityType: "article", Score: 1},
		{EntityID: "c1", EntityType: "video", Score: 0.5},
	}

	out := eng.applyDiversityFilter(recs, 3)

	types := make(map[string]bool)
	for _, o := range out[:3] {
		types[o.EntityType] = true
	}
	assert.Len(t, types, 3, "first three picks should span all three categories")
}

func TestHybridEngine_ApplyDiversityFilterNoopWhenMinCategoriesZero(t *testing.T) {
	eng := &HybridEngine{}
	recs := []ScoredEntity{{EntityID: "a", EntityType: "product", Score: 1}}
	out := eng.applyDiversityFilter(recs, 0)
	assert.Equal(t, recs, out)
}
