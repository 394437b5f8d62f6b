package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnknownProvider is returned when a name has no registered adapter.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderNameLocal is the built-in credential-free embedding provider.
const ProviderNameLocal = "local"

// ProviderConfig holds one provider's credentials and limits.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	// RPS is the sustained request rate allowed against the provider.
	RPS float64
}

// Config wires the registry: per-provider credentials plus the hard
// deadlines applied to each capability.
type Config struct {
	OpenAI      ProviderConfig
	Anthropic   ProviderConfig
	Mistral     ProviderConfig
	Together    ProviderConfig
	HuggingFace ProviderConfig

	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	JudgeTimeout    time.Duration

	// EmbedCacheTTL enables the Redis embedding cache when > 0 and a Redis
	// client is supplied.
	EmbedCacheTTL time.Duration
}

// Registry is the uniform front over LLM and embedding providers. Adapters
// are built lazily on first use and shared afterwards, so per-provider rate
// limiters apply across all callers. Safe for concurrent use.
type Registry struct {
	cfg     Config
	pricing *PricingTable
	redis   *redis.Client

	mu         sync.Mutex
	embedders  map[string]Embedder
	generators map[string]Generator
	judges     map[string]Generator

	// Raw adapters are shared between Generator and Judge so one rate
	// limiter governs all traffic to a provider.
	rawOpenAI    map[string]*openAICompatible
	rawAnthropic *anthropicProvider
}

func NewRegistry(cfg Config, pricing *PricingTable, redisClient *redis.Client) *Registry {
	if cfg.EmbedTimeout == 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	if cfg.GenerateTimeout == 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if cfg.JudgeTimeout == 0 {
		cfg.JudgeTimeout = 60 * time.Second
	}
	if pricing == nil {
		pricing = NewPricingTable(nil)
	}
	return &Registry{
		cfg:        cfg,
		pricing:    pricing,
		redis:      redisClient,
		embedders:  map[string]Embedder{},
		generators: map[string]Generator{},
		judges:     map[string]Generator{},
	}
}

// Pricing returns the process-wide pricing table.
func (r *Registry) Pricing() *PricingTable {
	return r.pricing
}

// RegisterEmbedder installs an embedder under name, replacing lazy
// construction. Used by tests to inject stubs.
func (r *Registry) RegisterEmbedder(name string, e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = e
}

// RegisterGenerator installs a generator (and judge) under name, replacing
// lazy construction. Used by tests to inject stubs.
func (r *Registry) RegisterGenerator(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
	r.judges[name] = g
}

// Embedder returns the embedding capability for the named provider,
// decorated with the retry policy and, when configured, the Redis cache.
func (r *Registry) Embedder(name string) (Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.embedders[name]; ok {
		return e, nil
	}

	var inner Embedder
	switch name {
	case ProviderNameLocal:
		inner = localEmbedder{}
	case "openai", "mistral", "together", "huggingface":
		pc, err := r.providerConfig(name)
		if err != nil {
			return nil, err
		}
		if pc.APIKey == "" {
			inner = authFailing{name: name}
		} else {
			inner = newOpenAICompatible(name, pc.APIKey, pc.BaseURL, rps(pc))
		}
	case "anthropic":
		// Anthropic exposes no embedding endpoint.
		return nil, fmt.Errorf("%w: %s has no embedding capability", ErrBadRequest, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	var e Embedder = &retryEmbedder{inner: inner, timeout: r.cfg.EmbedTimeout}
	if r.redis != nil && r.cfg.EmbedCacheTTL > 0 {
		e = newCachedEmbedder(e, name, r.redis, r.cfg.EmbedCacheTTL)
	}
	r.embedders[name] = e
	return e, nil
}

// Generator returns the generation capability for the named provider under
// the generation deadline.
func (r *Registry) Generator(name string) (Generator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.generators[name]; ok {
		return g, nil
	}
	inner, err := r.buildGenerator(name)
	if err != nil {
		return nil, err
	}
	g := &retryGenerator{inner: inner, timeout: r.cfg.GenerateTimeout}
	r.generators[name] = g
	return g, nil
}

// Judge returns the generation capability for the named provider under the
// shorter judge deadline. The underlying adapter, and with it the rate
// limiter, is shared with Generator.
func (r *Registry) Judge(name string) (Generator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.judges[name]; ok {
		return g, nil
	}
	inner, err := r.buildGenerator(name)
	if err != nil {
		return nil, err
	}
	g := &retryGenerator{inner: inner, timeout: r.cfg.JudgeTimeout}
	r.judges[name] = g
	return g, nil
}

// buildGenerator constructs (or reuses) the raw adapter for name. Caller
// holds r.mu.
func (r *Registry) buildGenerator(name string) (Generator, error) {
	switch name {
	case "openai", "mistral", "together", "huggingface":
		pc, err := r.providerConfig(name)
		if err != nil {
			return nil, err
		}
		if pc.APIKey == "" {
			return authFailing{name: name}, nil
		}
		return r.sharedOpenAI(name, pc), nil
	case "anthropic":
		if r.cfg.Anthropic.APIKey == "" {
			return authFailing{name: name}, nil
		}
		return r.sharedAnthropic(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

func (r *Registry) sharedOpenAI(name string, pc ProviderConfig) *openAICompatible {
	if r.rawOpenAI == nil {
		r.rawOpenAI = map[string]*openAICompatible{}
	}
	if a, ok := r.rawOpenAI[name]; ok {
		return a
	}
	a := newOpenAICompatible(name, pc.APIKey, pc.BaseURL, rps(pc))
	r.rawOpenAI[name] = a
	return a
}

func (r *Registry) sharedAnthropic() *anthropicProvider {
	if r.rawAnthropic == nil {
		r.rawAnthropic = newAnthropicProvider(r.cfg.Anthropic.APIKey, rps(r.cfg.Anthropic))
	}
	return r.rawAnthropic
}

func (r *Registry) providerConfig(name string) (ProviderConfig, error) {
	switch name {
	case "openai":
		return r.cfg.OpenAI, nil
	case "anthropic":
		return r.cfg.Anthropic, nil
	case "mistral":
		return r.cfg.Mistral, nil
	case "together":
		return r.cfg.Together, nil
	case "huggingface":
		return r.cfg.HuggingFace, nil
	}
	return ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

func rps(pc ProviderConfig) float64 {
	if pc.RPS <= 0 {
		return 5
	}
	return pc.RPS
}

// authFailing stands in for a provider whose credential is missing: every
// call refuses with the auth failure kind.
type authFailing struct {
	name string
}

func (a authFailing) Embed(context.Context, string, []string) (*EmbedResult, error) {
	return nil, fmt.Errorf("%w: no API key configured for %s", ErrAuth, a.name)
}

func (a authFailing) Generate(context.Context, string, string, GenerateOptions) (*GenerateResult, error) {
	return nil, fmt.Errorf("%w: no API key configured for %s", ErrAuth, a.name)
}
