package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// openAICompatible serves every provider speaking the OpenAI REST dialect:
// OpenAI itself plus Mistral, Together and HuggingFace TEI endpoints, which
// differ only in base URL and credentials.
type openAICompatible struct {
	name    string
	client  *openai.Client
	limiter *rate.Limiter
}

func newOpenAICompatible(name, apiKey, baseURL string, rps float64) *openAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAICompatible{
		name:    name,
		client:  openai.NewClientWithConfig(cfg),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

func (p *openAICompatible) Embed(ctx context.Context, model string, texts []string) (*EmbedResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, p.mapError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d inputs",
			ErrUnavailable, p.name, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	dim := 0
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
		if dim == 0 {
			dim = len(d.Embedding)
		}
	}

	return &EmbedResult{
		Vectors:    vectors,
		Dimension:  dim,
		TokenCount: resp.Usage.PromptTokens,
	}, nil
}

func (p *openAICompatible) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, p.mapError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", ErrUnavailable, p.name)
	}

	return &GenerateResult{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// mapError folds API failures into the provider taxonomy.
func (p *openAICompatible) mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %v", ErrTimeout, p.name, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s %s: %v", ErrAuth, p.name, op, err)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s %s: %v", ErrRateLimited, p.name, op, err)
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return fmt.Errorf("%w: %s %s: %v", ErrBadRequest, p.name, op, err)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, p.name, op, err)
	}

	// Transport-level failures (connection refused, DNS, 5xx without a parsed
	// body) are treated as the provider being unavailable.
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, p.name, op, err)
}
