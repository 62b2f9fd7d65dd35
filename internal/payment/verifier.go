package payment

import (
	"fmt"

	"github.com/zjoart/go-paystack-settlement/pkg/config"
)

// Registry holds the providers that have a configured secret.
type Registry struct {
	providers map[ProviderName]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[ProviderName]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// RegistryFromConfig registers Paystack always and Monnify when a client secret is set.
func RegistryFromConfig(cfg config.Config) *Registry {
	providers := []Provider{NewPaystack(cfg.PaystackSecret)}
	if cfg.MonnifyClientSecret != "" {
		providers = append(providers, NewMonnify(cfg.MonnifyClientSecret))
	}
	return NewRegistry(providers...)
}

func (r *Registry) Get(name ProviderName) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// Verifier checks a delivery's signature before anything in the body is trusted,
// then decodes it.
type Verifier struct {
	Registry *Registry
}

func NewVerifier(registry *Registry) *Verifier {
	return &Verifier{Registry: registry}
}

func (v *Verifier) Verify(name ProviderName, body []byte, signature string) (*Envelope, error) {
	p, err := v.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := p.VerifySignature(body, signature); err != nil {
		return nil, err
	}
	return p.Parse(body)
}
