package retrieval

import (
	"context"
	"crypto/sha256"
	"strings"
)

// HashEmbedder is a deterministic, dependency-free Embedder for tests and
// for running the engine without a real embedding service wired in:
// identical text always yields an identical vector, and vectors of
// overlapping tokens have nonzero cosine similarity. Production
// deployments supply a real Embedder.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder constructs a HashEmbedder with the given vector
// dimensionality. dims <= 0 defaults to 32.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 32
	}
	return &HashEmbedder{Dims: dims}
}

// Embed implements Embedder by hashing each whitespace-separated token
// into a bucket and accumulating a bag-of-tokens vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.Dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		bucket := int(sum[0]) % h.Dims
		vec[bucket]++
	}
	return vec, nil
}
