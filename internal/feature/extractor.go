// Package feature extracts fixed-dimension, L2-normalized feature
// vectors from an entity's attribute bag, grounded on
// original_source/crates/models/src/feature_extractor.rs's
// DefaultFeatureExtractor.
package feature

import (
	"sort"

	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
)

// Extractor produces a length-D vector from an attribute bag. The
// contract is fixed dimension and unit length (or the zero vector);
// alternative strategies (TF-IDF, one-hot) may implement this
// interface without changing any caller.
type Extractor interface {
	Extract(attrs vectorstore.AttributeBag) ([]float32, error)
	Dimension() int
}

// DefaultExtractor implements spec.md §4.1's default algorithm: number
// clamped to [0,1], boolean as 0/1, string as a deterministic
// normalized hash, string list as the mean of per-string hashes, then
// pad/truncate to D and L2-normalize.
type DefaultExtractor struct {
	dimension int
}

func NewDefaultExtractor(dimension int) *DefaultExtractor {
	if dimension <= 0 {
		dimension = vectorstore.DefaultDimension
	}
	return &DefaultExtractor{dimension: dimension}
}

func (e *DefaultExtractor) Dimension() int { return e.dimension }

// Extract is a pure function of attrs: iteration is over attribute
// names in sorted order so the resulting vector never depends on Go's
// randomized map iteration order.
func (e *DefaultExtractor) Extract(attrs vectorstore.AttributeBag) ([]float32, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	features := make([]float32, 0, len(keys))
	for _, k := range keys {
		v := attrs[k]
		switch v.Kind {
		case vectorstore.AttributeNumber:
			features = append(features, float32(clamp01(v.Number)))
		case vectorstore.AttributeBool:
			if v.Bool {
				features = append(features, 1.0)
			} else {
				features = append(features, 0.0)
			}
		case vectorstore.AttributeString:
			features = append(features, hashString(v.String))
		case vectorstore.AttributeStringList:
			features = append(features, meanHash(v.StringList))
		default:
			return nil, rerrors.Newf(rerrors.KindVectorError, "unrecognized attribute kind %q for key %q", v.Kind, k)
		}
	}

	sized := vectorstore.PadOrTruncate(features, e.dimension)
	return vectorstore.L2Normalize(sized), nil
}

func clamp01(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// hashString is the exact algorithm of the original extractor's
// hash_string: a wrapping *31 multiply-add over the string's bytes,
// folded into [0, 1) by mod 1000.
func hashString(s string) float32 {
	var hash uint32
	for i := 0; i < len(s); i++ {
		hash = hash*31 + uint32(s[i])
	}
	return float32(hash%1000) / 1000.0
}

func meanHash(list []string) float32 {
	if len(list) == 0 {
		return 0
	}
	var sum float32
	for _, s := range list {
		sum += hashString(s)
	}
	return sum / float32(len(list))
}
