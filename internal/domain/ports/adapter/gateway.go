package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain/model"
)

// PaymentResult is the uniform outcome of any gateway operation, so the
// orchestrator never branches on provider-specific shapes. Operations a
// provider does not support return Success=false with an explanatory
// message rather than an error.
type PaymentResult struct {
	Success       bool
	TransactionID string
	ErrorMessage  string
	Metadata      map[string]string
}

// CustomerData carries the customer fields gateways need to attribute a
// charge. The acting user is always explicit; there is no ambient tenant.
type CustomerData struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// PaymentGateway is the hex port for payment providers. Construction
// validates required configuration eagerly and fails with
// domain.ErrConfiguration rather than deferring to the first call.
type PaymentGateway interface {
	Name() string

	CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, customer CustomerData) PaymentResult
	VerifyPayment(ctx context.Context, externalID string) PaymentResult
	// RefundPayment refunds the full amount when amount is nil.
	RefundPayment(ctx context.Context, externalID string, amount *decimal.Decimal) PaymentResult

	CreateSubscription(ctx context.Context, customer CustomerData, planID string) PaymentResult
	CancelSubscription(ctx context.Context, externalID string) PaymentResult

	SupportedCurrencies() []string
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// GatewayFactory resolves a provider record to a concrete gateway instance.
// An unknown provider name is a configuration error, not a panic.
type GatewayFactory interface {
	Resolve(provider *model.PaymentProvider) (PaymentGateway, error)
}
