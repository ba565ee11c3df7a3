package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway charges through Stripe PaymentIntents. Amounts are converted
// to minor units (cents) on the way out; all supported currencies here use
// two decimal places.
type StripeGateway struct {
	client        *stripe.Client
	webhookSecret string
	currencies    []string
}

func NewStripeGateway(cfg map[string]string) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg["api_key"])
	if apiKey == "" {
		return nil, fmt.Errorf("%w: stripe api_key is required", domain.ErrConfiguration)
	}
	return &StripeGateway{
		client:        stripe.NewClient(apiKey),
		webhookSecret: cfg["webhook_secret"],
		currencies:    []string{"USD", "EUR", "GBP", "ZAR"},
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) SupportedCurrencies() []string { return g.currencies }

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (g *StripeGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, customer adapter.CustomerData) adapter.PaymentResult {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(minorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		Confirm:  stripe.Bool(true),
	}
	params.AddMetadata("user_id", customer.UserID)
	if customer.Email != "" {
		params.ReceiptEmail = stripe.String(customer.Email)
	}

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return adapter.PaymentResult{
			Success:       false,
			TransactionID: pi.ID,
			ErrorMessage:  fmt.Sprintf("payment intent status %s", pi.Status),
		}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: pi.ID,
		Metadata:      map[string]string{"status": string(pi.Status)},
	}
}

func (g *StripeGateway) VerifyPayment(ctx context.Context, externalID string) adapter.PaymentResult {
	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, externalID, nil)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       pi.Status == stripe.PaymentIntentStatusSucceeded,
		TransactionID: pi.ID,
		Metadata:      map[string]string{"status": string(pi.Status)},
	}
}

func (g *StripeGateway) RefundPayment(ctx context.Context, externalID string, amount *decimal.Decimal) adapter.PaymentResult {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(externalID),
	}
	if amount != nil {
		params.Amount = stripe.Int64(minorUnits(*amount))
	}
	ref, err := g.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: ref.ID,
		Metadata:      map[string]string{"status": string(ref.Status)},
	}
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, customer adapter.CustomerData, planID string) adapter.PaymentResult {
	custParams := &stripe.CustomerCreateParams{}
	custParams.AddMetadata("user_id", customer.UserID)
	if customer.Email != "" {
		custParams.Email = stripe.String(customer.Email)
	}
	if customer.Name != "" {
		custParams.Name = stripe.String(customer.Name)
	}
	cust, err := g.client.V1Customers.Create(ctx, custParams)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}

	subParams := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(cust.ID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(planID)},
		},
	}
	subParams.AddMetadata("user_id", customer.UserID)
	sub, err := g.client.V1Subscriptions.Create(ctx, subParams)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: sub.ID,
		Metadata:      map[string]string{"customer_id": cust.ID},
	}
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, externalID string) adapter.PaymentResult {
	sub, err := g.client.V1Subscriptions.Cancel(ctx, externalID, nil)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: sub.ID,
		Metadata:      map[string]string{"status": string(sub.Status)},
	}
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.webhookSecret == "" {
		return false
	}
	_, err := stripe.ConstructEvent(payload, signature, g.webhookSecret)
	return err == nil
}
