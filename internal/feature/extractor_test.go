package feature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
)

func TestDefaultExtractor_ProducesUnitLengthVector(t *testing.T) {
	e := NewDefaultExtractor(16)
	attrs := vectorstore.AttributeBag{
		"price":    vectorstore.NumberValue(99.99),
		"category": vectorstore.StringValue("electronics"),
		"in_stock": vectorstore.BoolValue(true),
		"tags":     vectorstore.StringListValue([]string{"new", "sale"}),
	}

	vec, err := e.Extract(attrs)
	require.NoError(t, err)
	require.Len(t, vec, 16)

	var magnitude float64
	for _, x := range vec {
		magnitude += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(magnitude), 0.01)
}

func TestDefaultExtractor_IsPureFunctionOfBagRegardlessOfIterationOrder(t *testing.T) {
	e := NewDefaultExtractor(8)
	attrs := vectorstore.AttributeBag{
		"a": vectorstore.NumberValue(0.5),
		"b": vectorstore.StringValue("hello"),
		"c": vectorstore.BoolValue(false),
	}

	v1, err := e.Extract(attrs)
	require.NoError(t, err)
	v2, err := e.Extract(attrs)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestDefaultExtractor_NumberClampedTo01(t *testing.T) {
	e := NewDefaultExtractor(1)
	vec, err := e.Extract(vectorstore.AttributeBag{"x": vectorstore.NumberValue(5.0)})
	require.NoError(t, err)
	require.Len(t, vec, 1)
	assert.InDelta(t, 1.0, vec[0], 1e-6)
}

func TestDefaultExtractor_EmptyStringListProducesZeroComponent(t *testing.T) {
	e := NewDefaultExtractor(8)
	vec, err := e.Extract(vectorstore.AttributeBag{
		"tags": vectorstore.StringListValue(nil),
		"n":    vectorstore.NumberValue(0),
	})
	require.NoError(t, err)
	// n=0 then tags=[] in sorted order ("n" < "tags"): both components are 0
	// so the whole vector is the zero vector (L2Normalize leaves it unchanged).
	for _, x := range vec {
		assert.Equal(t, float32(0), x)
	}
}

func TestDefaultExtractor_EmptyBagProducesZeroVector(t *testing.T) {
	e := NewDefaultExtractor(4)
	vec, err := e.Extract(vectorstore.AttributeBag{})
	require.NoError(t, err)
	require.Len(t, vec, 4)
	for _, x := range vec {
		assert.Equal(t, float32(0), x)
	}
}

func TestDefaultExtractor_PadsAndTruncatesToDimension(t *testing.T) {
	e := NewDefaultExtractor(2)
	vec, err := e.Extract(vectorstore.AttributeBag{
		"a": vectorstore.NumberValue(1),
		"b": vectorstore.NumberValue(1),
		"c": vectorstore.NumberValue(1),
	})
	require.NoError(t, err)
	assert.Len(t, vec, 2)

	e2 := NewDefaultExtractor(5)
	vec2, err := e2.Extract(vectorstore.AttributeBag{"a": vectorstore.NumberValue(1)})
	require.NoError(t, err)
	assert.Len(t, vec2, 5)
}
