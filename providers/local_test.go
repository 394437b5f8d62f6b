package providers

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := localEmbedder{}

	first, err := e.Embed(context.Background(), "bge-small", []string{"the quick brown fox", "hello world"})
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "bge-small", []string{"the quick brown fox", "hello world"})
	require.NoError(t, err)

	assert.Equal(t, first.Vectors, second.Vectors)
	assert.Equal(t, LocalDimension, first.Dimension)
	require.Len(t, first.Vectors, 2)
	assert.Len(t, first.Vectors[0], LocalDimension)
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := localEmbedder{}

	result, err := e.Embed(context.Background(), "bge-small", []string{"some words to embed here"})
	require.NoError(t, err)

	norm := 0.0
	for _, v := range result.Vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestLocalEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := localEmbedder{}

	result, err := e.Embed(context.Background(), "bge-small", []string{
		"cats are small furry animals",
		"cats are small furry pets",
		"quantum chromodynamics lattice simulations",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		sum := 0.0
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}

	near := dot(result.Vectors[0], result.Vectors[1])
	far := dot(result.Vectors[0], result.Vectors[2])
	assert.Greater(t, near, far)
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := localEmbedder{}

	result, err := e.Embed(context.Background(), "bge-small", []string{""})
	require.NoError(t, err)
	require.Len(t, result.Vectors, 1)
	assert.Len(t, result.Vectors[0], LocalDimension)
}
