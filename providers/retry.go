package providers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAttempts bounds total provider invocations per logical call.
const maxAttempts = 3

var (
	backoffBase = 2 * time.Second
	backoffCap  = 10 * time.Second
)

// retryCall runs op under the provider retry policy: up to maxAttempts
// invocations with exponential backoff, each attempt bounded by timeout.
// Only rate-limit, timeout and unavailable failures are retried; everything
// else is surfaced immediately.
func retryCall(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffBase
	b.MaxInterval = backoffCap
	b.RandomizationFactor = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)

	return backoff.Retry(func() error {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		// A per-attempt deadline expiry is a provider timeout; a cancelled
		// parent context is not retriable.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.Join(ErrTimeout, err)
		}
		if !IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// retryEmbedder decorates an Embedder with the retry policy.
type retryEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

func (r *retryEmbedder) Embed(ctx context.Context, model string, texts []string) (*EmbedResult, error) {
	var result *EmbedResult
	err := retryCall(ctx, r.timeout, func(ctx context.Context) error {
		res, err := r.inner.Embed(ctx, model, texts)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryGenerator decorates a Generator with the retry policy.
type retryGenerator struct {
	inner   Generator
	timeout time.Duration
}

func (r *retryGenerator) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	var result *GenerateResult
	err := retryCall(ctx, r.timeout, func(ctx context.Context) error {
		res, err := r.inner.Generate(ctx, model, prompt, opts)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
