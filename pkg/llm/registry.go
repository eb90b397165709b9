package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Factory builds a Completer from configuration.
type Factory func(cfg Config) (Completer, error)

// Registry maps provider names to factories. It is constructed explicitly and
// handed to whoever wires the application.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the local, openai and anthropic providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(ProviderLocal, func(cfg Config) (Completer, error) { return NewLocalClient(cfg) })
	r.Register(ProviderOpenAI, func(cfg Config) (Completer, error) { return NewOpenAIClient(cfg) })
	r.Register(ProviderAnthropic, func(cfg Config) (Completer, error) { return NewAnthropicClient(cfg) })
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Build(cfg Config) (Completer, error) {
	name := strings.ToLower(cfg.Provider)
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q (available: %s)", cfg.Provider, strings.Join(r.Names(), ", "))
	}
	cfg.Provider = name
	return f(cfg)
}
