package embedding

import (
	"context"
	"math"
)

// DefaultDimension matches all-MiniLM-L6-v2, the model the reports collection is sized for.
const DefaultDimension = 384

// Embedder turns text into a fixed-length, unit-norm vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// normalizeVector scales vec to unit length so cosine distance in the store
// behaves like a dot product. A zero vector is returned unchanged.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}

// Normalize is exported for embedders living in sub-packages.
func Normalize(vec []float32) []float32 {
	return normalizeVector(vec)
}
