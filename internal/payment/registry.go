package payment

import (
	"fmt"

	"masterhand/internal/models"
)

// Registry maps a payment method name to its strategy. Lookups are case-sensitive
// and an empty method resolves to the card gateway.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.ProviderName()] = s
	}
	return r
}

// Resolve returns the strategy registered under method. The empty method is
// the only fallback and resolves to Card, the default entry; any other
// unregistered name, including a different casing, is an error.
func (r *Registry) Resolve(method string) (Strategy, error) {
	if method == "" {
		method = models.DefaultPaymentMethod
	}
	s, ok := r.strategies[method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}
	return s, nil
}

// Methods lists the registered method names.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		out = append(out, name)
	}
	return out
}
