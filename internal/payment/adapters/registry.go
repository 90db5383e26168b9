package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/promptly/internal/payment/domain"
	"go.uber.org/zap"
)

// Registry knows every provider this binary can talk to.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if provider := normalize(factory.Provider()); provider != "" {
			r.factories[provider] = factory
		}
	}
	return r
}

// Providers lists registered provider names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates the configured providers. A provider whose config is
// rejected is left out and surfaces later as ErrProviderNotFound.
func (r *Registry) Build(configs map[string]domain.AdapterConfig, log *zap.Logger) *Set {
	set := &Set{adapters: map[string]domain.PaymentAdapter{}}
	if r == nil {
		return set
	}
	if log == nil {
		log = zap.NewNop()
	}
	for name, cfg := range configs {
		provider := normalize(name)
		factory, ok := r.factories[provider]
		if !ok {
			continue
		}
		adapter, err := factory.NewAdapter(cfg)
		if err != nil {
			log.Warn("payment provider disabled", zap.String("provider", provider), zap.Error(err))
			continue
		}
		set.adapters[provider] = adapter
	}
	return set
}

// Set holds the live adapters of one process.
type Set struct {
	adapters map[string]domain.PaymentAdapter
}

func (s *Set) Adapter(provider string) (domain.PaymentAdapter, error) {
	if s == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := s.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Checkout returns the provider's checkout capability, if it has one.
func (s *Set) Checkout(provider string) (domain.CheckoutAdapter, bool) {
	adapter, err := s.Adapter(provider)
	if err != nil {
		return nil, false
	}
	checkout, ok := adapter.(domain.CheckoutAdapter)
	return checkout, ok
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
