package providers

import (
	"context"
	"errors"
)

// Provider failure taxonomy. Adapters map raw API errors onto these kinds;
// the retry policy and the HTTP boundary branch on them with errors.Is.
var (
	ErrAuth        = errors.New("provider authentication failed")
	ErrRateLimited = errors.New("provider rate limited")
	ErrBadRequest  = errors.New("provider rejected request")
	ErrTimeout     = errors.New("provider call timed out")
	ErrUnavailable = errors.New("provider unavailable")
)

// IsRetriable reports whether the error is worth another attempt under the
// backoff policy. Auth and bad-request failures are terminal.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// EmbedResult is the outcome of one embedding call.
type EmbedResult struct {
	Vectors    [][]float32
	Dimension  int
	TokenCount int
}

// GenerateResult is the outcome of one generation call.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// GenerateOptions carries the per-call generation knobs.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Embedder is the embedding capability. Implementations are safe for
// concurrent use and apply their own rate limiting.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) (*EmbedResult, error)
}

// Generator is the text generation capability. Implementations are safe for
// concurrent use and apply their own rate limiting.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*GenerateResult, error)
}
