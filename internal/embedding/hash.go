package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const hashModel = "feature-hash-v1"

// HashEmbedder is a deterministic feature-hashing embedder: each token of
// the normalized text is FNV-1a hashed into one of dim signed buckets, and
// the bucket vector is L2-normalized. It needs no external service and is
// a pure function of its input, which makes ranking tests reproducible.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder of the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Model() string { return hashModel }

// Embed hashes each token into a bucket, with the hash's top bit choosing
// the sign so unrelated tokens cancel rather than accumulate. Empty input
// yields the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	normalized := Normalize(text)
	if normalized == "" {
		return vec, nil
	}

	for _, token := range strings.Fields(normalized) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	return l2Normalize(vec), nil
}

// l2Normalize scales the vector to unit length. An all-zero vector (every
// token cancelled) is returned as-is.
func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}
