package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalProvider is a deterministic feature-hashing embedder. It needs no
// model or network, which makes it the default for tests and offline runs.
// Identical texts always map to identical vectors.
type LocalProvider struct {
	dim int
}

var _ Embedder = (*LocalProvider)(nil)

func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalProvider{dim: dim}
}

func (p *LocalProvider) Dimension() int {
	return p.dim
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	// Empty input still needs a non-zero vector for cosine distance.
	if len(tokens) == 0 {
		vec[0] = 1
		return vec, nil
	}

	for i, tok := range tokens {
		p.add(vec, tok, 1)
		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return normalizeVector(vec), nil
}

func (p *LocalProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(p.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
