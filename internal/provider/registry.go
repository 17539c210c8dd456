package provider

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/provider/adapters"
)

var (
	// ErrUnknownModel is returned when a model id is not in models.yaml.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownPrompt is returned when a prompt id is not in prompts.yaml.
	ErrUnknownPrompt = errors.New("unknown prompt")
	// ErrNoProvider is returned when no provider of a model could be called.
	ErrNoProvider = errors.New("no available provider")
)

// Endpoint is a registered provider with its outbound limiter.
type Endpoint struct {
	Name    string
	Adapter adapters.Adapter
	// Limiter is nil when the provider is not rate limited.
	Limiter *rate.Limiter
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

func (r *Registry) Register(name string, adapter adapters.Adapter, limiter *rate.Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = &Endpoint{Name: name, Adapter: adapter, Limiter: limiter}
}

func (r *Registry) Get(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

// Swap replaces the endpoints with those of next. The previous adapters are
// closed after grace so calls already holding them can finish; a grace of
// zero closes them at once.
func (r *Registry) Swap(next *Registry, grace time.Duration) {
	next.mu.RLock()
	endpoints := next.endpoints
	next.mu.RUnlock()

	r.mu.Lock()
	old := r.endpoints
	r.endpoints = endpoints
	r.mu.Unlock()

	if grace <= 0 {
		closeEndpoints(old)
		return
	}
	time.AfterFunc(grace, func() { closeEndpoints(old) })
}

// Close releases adapters holding connections.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	closeEndpoints(r.endpoints)
}

func closeEndpoints(endpoints map[string]*Endpoint) {
	for _, e := range endpoints {
		if c, ok := e.Adapter.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

// BuildFromConfig creates an adapter per configured provider.
func BuildFromConfig(provCfg *config.ProvidersConfig) (*Registry, error) {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		var adapter adapters.Adapter
		switch cfg.Type {
		case "grpc":
			a, err := adapters.NewGRPCAdapter(cfg)
			if err != nil {
				registry.Close()
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			adapter = a
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, newHTTPClient(cfg))
		case "openai", "":
			adapter = adapters.NewOpenAIAdapter(cfg, newHTTPClient(cfg))
		default:
			registry.Close()
			return nil, fmt.Errorf("provider %s: unsupported type %q", name, cfg.Type)
		}
		registry.Register(name, adapter, newLimiter(cfg))
	}
	return registry, nil
}

func newHTTPClient(cfg config.ProviderConfig) *http.Client {
	maxConns := cfg.MaxConcurrent
	if maxConns <= 0 {
		maxConns = 16
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

func newLimiter(cfg config.ProviderConfig) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
}

// Candidate is a provider and the concrete model to ask it for.
type Candidate struct {
	Endpoint *Endpoint
	Model    string
}

// Candidates lists the registered providers of modelID, primary first, then
// fallbacks in order. Unregistered providers are skipped.
func Candidates(modelsCfg *config.ModelsConfig, registry *Registry, modelID string) ([]Candidate, error) {
	mapping, ok := modelsCfg.Models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	routes := append([]config.ProviderRoute{mapping.Primary}, mapping.Fallback...)
	var out []Candidate
	for _, r := range routes {
		if e, ok := registry.Get(r.Provider); ok {
			out = append(out, Candidate{Endpoint: e, Model: r.Model})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w for model %s", ErrNoProvider, modelID)
	}
	return out, nil
}
