package gateway

import (
	"fmt"
	"sync"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
)

var _ adapter.GatewayFactory = (*Factory)(nil)

// Factory builds gateways from provider records. Entries from the config
// file's gateways section overlay the record's config, so secrets can stay
// out of the database. Instances are cached per provider name; the merged
// config is static for the life of the process.
type Factory struct {
	mu        sync.Mutex
	overrides map[string]map[string]string
	built     map[string]adapter.PaymentGateway
}

func NewFactory(overrides map[string]map[string]string) *Factory {
	return &Factory{
		overrides: overrides,
		built:     make(map[string]adapter.PaymentGateway),
	}
}

func (f *Factory) gatewayConfig(provider *model.PaymentProvider) map[string]string {
	merged := make(map[string]string, len(provider.Config))
	for k, v := range provider.Config {
		merged[k] = v
	}
	for k, v := range f.overrides[provider.Name] {
		merged[k] = v
	}
	return merged
}

func (f *Factory) Resolve(provider *model.PaymentProvider) (adapter.PaymentGateway, error) {
	if provider == nil || provider.Name == "" {
		return nil, fmt.Errorf("%w: missing provider record", domain.ErrConfiguration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.built[provider.Name]; ok {
		return g, nil
	}

	cfg := f.gatewayConfig(provider)

	var (
		g   adapter.PaymentGateway
		err error
	)
	switch provider.Name {
	case "stripe":
		g, err = NewStripeGateway(cfg)
	case "paypal":
		g, err = NewPayPalGateway(cfg)
	case "ecocash", "onemoney":
		g, err = NewMobileMoneyGateway(provider.Name, cfg)
	default:
		return nil, fmt.Errorf("%w: no gateway registered for provider %q", domain.ErrConfiguration, provider.Name)
	}
	if err != nil {
		return nil, err
	}

	f.built[provider.Name] = g
	return g, nil
}
