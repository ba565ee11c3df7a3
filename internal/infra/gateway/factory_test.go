package gateway

import (
	"errors"
	"testing"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
)

func TestFactoryResolveUnknownProvider(t *testing.T) {
	f := NewFactory(nil)

	if _, err := f.Resolve(nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("nil provider err = %v, want ErrConfiguration", err)
	}
	_, err := f.Resolve(&model.PaymentProvider{Name: "braintree", Config: map[string]string{}})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("unknown provider err = %v, want ErrConfiguration", err)
	}
}

func TestFactoryResolveInvalidConfig(t *testing.T) {
	f := NewFactory(nil)

	_, err := f.Resolve(&model.PaymentProvider{Name: "stripe", Config: map[string]string{}})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("stripe without api_key err = %v, want ErrConfiguration", err)
	}
	_, err = f.Resolve(&model.PaymentProvider{Name: "ecocash", Config: map[string]string{"api_key": "k"}})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ecocash without base_url err = %v, want ErrConfiguration", err)
	}
}

func TestFactoryAppliesConfigOverrides(t *testing.T) {
	f := NewFactory(map[string]map[string]string{
		"ecocash": {"api_key": "file-key"},
	})
	provider := &model.PaymentProvider{
		Name:   "ecocash",
		Config: map[string]string{"base_url": "http://api.example"},
	}

	// The record alone is incomplete; the file overlay supplies the secret.
	g, err := f.Resolve(provider)
	if err != nil {
		t.Fatalf("Resolve with overlay: %v", err)
	}
	if g.Name() != "ecocash" {
		t.Fatalf("gateway name = %q", g.Name())
	}
	if _, ok := provider.Config["api_key"]; ok {
		t.Fatal("overlay mutated the provider record")
	}
}

func TestFactoryCachesInstances(t *testing.T) {
	f := NewFactory(nil)
	provider := &model.PaymentProvider{
		Name:   "ecocash",
		Config: map[string]string{"api_key": "k", "base_url": "http://api.example"},
	}

	first, err := f.Resolve(provider)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := f.Resolve(provider)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first != second {
		t.Fatal("factory rebuilt the gateway instead of reusing the cached instance")
	}
	if first.Name() != "ecocash" {
		t.Fatalf("gateway name = %q", first.Name())
	}
}
