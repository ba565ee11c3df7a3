package model

import "legacygrid-billing/internal/domain"

// PaymentProvider is static configuration for one payment integration.
// Mutated only by administrative action; read-only to the billing flow.
type PaymentProvider struct {
	Name                string // unique
	DisplayName         string
	IsActive            bool
	SupportsWebhooks    bool
	SupportedCurrencies []string
	Config              map[string]string // opaque, gateway-specific
}

// SupportsCurrency checks the provider record's currency list.
func (p *PaymentProvider) SupportsCurrency(code string) bool {
	for _, c := range p.SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// NewPaymentProvider validates and constructs a provider record.
func NewPaymentProvider(name, displayName string, supportsWebhooks bool, currencies []string, config map[string]string) (*PaymentProvider, error) {
	if name == "" || displayName == "" {
		return nil, domain.ErrInvalidArgument
	}
	if config == nil {
		config = map[string]string{}
	}
	return &PaymentProvider{
		Name:                name,
		DisplayName:         displayName,
		IsActive:            true,
		SupportsWebhooks:    supportsWebhooks,
		SupportedCurrencies: currencies,
		Config:              config,
	}, nil
}
