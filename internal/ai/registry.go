package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return nil, ErrUnconfigured
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BackendSettings carries the per-backend settings the default factories read.
type BackendSettings struct {
	Options Options

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	OllamaBaseURL string
	OllamaModel   string
}

// NewDefaultRegistry registers the openai, openrouter and ollama backends.
// Key-based backends report ErrUnconfigured when their key is empty.
func NewDefaultRegistry(s BackendSettings) *Registry {
	r := NewRegistry()
	r.Register("openai", func(_ context.Context, model string) (Provider, error) {
		if strings.TrimSpace(s.OpenAIAPIKey) == "" {
			return nil, ErrUnconfigured
		}
		if model == "" {
			model = s.OpenAIModel
		}
		return NewOpenAIProvider(s.OpenAIBaseURL, s.OpenAIAPIKey, model, s.Options), nil
	})
	r.Register("openrouter", func(_ context.Context, model string) (Provider, error) {
		if strings.TrimSpace(s.OpenRouterAPIKey) == "" {
			return nil, ErrUnconfigured
		}
		if model == "" {
			model = s.OpenRouterModel
		}
		return NewOpenRouterProvider(s.OpenRouterBaseURL, s.OpenRouterAPIKey, model, s.OpenRouterSiteURL, s.OpenRouterAppName, s.Options), nil
	})
	r.Register("ollama", func(_ context.Context, model string) (Provider, error) {
		if model == "" {
			model = s.OllamaModel
		}
		return NewOllamaProvider(s.OllamaBaseURL, model, s.Options), nil
	})
	return r
}
