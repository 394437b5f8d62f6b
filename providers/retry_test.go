package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shrinkBackoff(t *testing.T) {
	t.Helper()
	origBase, origCap := backoffBase, backoffCap
	backoffBase = time.Millisecond
	backoffCap = 5 * time.Millisecond
	t.Cleanup(func() {
		backoffBase, backoffCap = origBase, origCap
	})
}

// countingEmbedder fails a fixed number of times before succeeding.
type countingEmbedder struct {
	calls    atomic.Int32
	failures int
	err      error
}

func (e *countingEmbedder) Embed(_ context.Context, _ string, texts []string) (*EmbedResult, error) {
	n := e.calls.Add(1)
	if int(n) <= e.failures {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return &EmbedResult{Vectors: vectors, Dimension: 2, TokenCount: len(texts)}, nil
}

func TestRetry_RecoversFromTransientFailure(t *testing.T) {
	shrinkBackoff(t)

	inner := &countingEmbedder{failures: 2, err: ErrRateLimited}
	e := &retryEmbedder{inner: inner}

	result, err := e.Embed(context.Background(), "m", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Dimension)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetry_AtMostThreeAttempts(t *testing.T) {
	shrinkBackoff(t)

	inner := &countingEmbedder{failures: 100, err: ErrUnavailable}
	e := &retryEmbedder{inner: inner}

	_, err := e.Embed(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(maxAttempts), inner.calls.Load())
}

func TestRetry_TerminalFailureNotRetried(t *testing.T) {
	shrinkBackoff(t)

	for _, terminal := range []error{ErrAuth, ErrBadRequest} {
		inner := &countingEmbedder{failures: 100, err: terminal}
		e := &retryEmbedder{inner: inner}

		_, err := e.Embed(context.Background(), "m", []string{"a"})
		require.Error(t, err)
		assert.ErrorIs(t, err, terminal)
		assert.Equal(t, int32(1), inner.calls.Load())
	}
}

func TestRetry_ParentCancellationStops(t *testing.T) {
	shrinkBackoff(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &countingEmbedder{failures: 100, err: ErrUnavailable}
	e := &retryEmbedder{inner: inner}

	_, err := e.Embed(ctx, "m", []string{"a"})
	require.Error(t, err)
	assert.LessOrEqual(t, inner.calls.Load(), int32(1))
}

func TestRetry_AttemptDeadlineBecomesTimeout(t *testing.T) {
	shrinkBackoff(t)

	slow := generatorFunc(func(ctx context.Context, _, _ string, _ GenerateOptions) (*GenerateResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := &retryGenerator{inner: slow, timeout: 5 * time.Millisecond}

	_, err := g.Generate(context.Background(), "m", "p", GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

type generatorFunc func(ctx context.Context, model, prompt string, opts GenerateOptions) (*GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	return f(ctx, model, prompt, opts)
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(ErrRateLimited))
	assert.True(t, IsRetriable(ErrTimeout))
	assert.True(t, IsRetriable(ErrUnavailable))
	assert.False(t, IsRetriable(ErrAuth))
	assert.False(t, IsRetriable(ErrBadRequest))
	assert.False(t, IsRetriable(errors.New("other")))
}
