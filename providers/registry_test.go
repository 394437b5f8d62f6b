package providers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LocalEmbedderNeedsNoCredential(t *testing.T) {
	r := NewRegistry(Config{}, nil, nil)

	e, err := r.Embedder(ProviderNameLocal)
	require.NoError(t, err)

	result, err := e.Embed(context.Background(), "bge-small", []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, LocalDimension, result.Dimension)
}

func TestRegistry_MissingCredentialRefusesWithAuth(t *testing.T) {
	r := NewRegistry(Config{}, nil, nil)

	e, err := r.Embedder("openai")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "text-embedding-3-small", []string{"x"})
	assert.ErrorIs(t, err, ErrAuth)

	g, err := r.Generator("anthropic")
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "claude-sonnet-4-20250514", "hi", GenerateOptions{MaxTokens: 10})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(Config{}, nil, nil)

	_, err := r.Embedder("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Generator("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_AnthropicHasNoEmbedding(t *testing.T) {
	r := NewRegistry(Config{Anthropic: ProviderConfig{APIKey: "k"}}, nil, nil)

	_, err := r.Embedder("anthropic")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRegistry_RegisteredStubWins(t *testing.T) {
	r := NewRegistry(Config{}, nil, nil)

	stub := &countingEmbedder{}
	r.RegisterEmbedder("openai", stub)

	e, err := r.Embedder("openai")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "m", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestRegistry_EmbedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countingEmbedder{}
	cached := newCachedEmbedder(inner, "local", client, time.Minute)

	first, err := cached.Embed(context.Background(), "m", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())

	second, err := cached.Embed(context.Background(), "m", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load(), "second call should be served from cache")
	assert.Equal(t, first.Vectors, second.Vectors)
	assert.Equal(t, first.Dimension, second.Dimension)

	// A new text misses and only the miss reaches the provider.
	_, err = cached.Embed(context.Background(), "m", []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}
