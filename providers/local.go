package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// LocalDimension is the fixed output dimension of the local embedder,
// matching the small BGE family.
const LocalDimension = 384

// localEmbedder produces deterministic, free embeddings without any network
// dependency: a feature-hashing bag-of-words projection, L2-normalized so
// cosine similarity behaves. Useful for offline workspaces and tests.
type localEmbedder struct{}

func (localEmbedder) Embed(_ context.Context, _ string, texts []string) (*EmbedResult, error) {
	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		words := strings.Fields(strings.ToLower(text))
		tokens += len(words)
		vectors[i] = hashEmbed(words)
	}
	return &EmbedResult{
		Vectors:    vectors,
		Dimension:  LocalDimension,
		TokenCount: tokens,
	}, nil
}

func hashEmbed(words []string) []float32 {
	vec := make([]float64, LocalDimension)
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		idx := binary.BigEndian.Uint32(sum[0:4]) % LocalDimension
		sign := 1.0
		if sum[4]&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, LocalDimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
