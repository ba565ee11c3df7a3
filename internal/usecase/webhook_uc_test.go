// File: internal/usecase/webhook_uc_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
)

type webhookTestEnv struct {
	providers *memProviderRepo
	events    *memWebhookRepo
	payments  *memPaymentRepo
	subs      *memSubRepo
	audit     *memAuditRepo
	gateway   *fakeGateway
	manager   *SubscriptionManager
	processor *WebhookProcessor
}

func newWebhookTestEnv(t *testing.T) *webhookTestEnv {
	t.Helper()
	ctx := context.Background()
	env := &webhookTestEnv{
		providers: newMemProviderRepo(),
		events:    newMemWebhookRepo(),
		payments:  newMemPaymentRepo(),
		subs:      newMemSubRepo(),
		audit:     newMemAuditRepo(),
		gateway:   newFakeGateway("stripe", "USD"),
	}
	currencies := newMemCurrencyRepo()
	seedCurrencies(t, currencies, map[string]string{"USD": "1"})
	tiers := newMemTierRepo()
	tier, err := model.NewSubscriptionTier("tier-basic", "basic", "", nil, false, 1)
	if err != nil {
		t.Fatalf("NewSubscriptionTier: %v", err)
	}
	if err := tiers.Save(ctx, nil, tier); err != nil {
		t.Fatalf("save tier: %v", err)
	}
	provider, err := model.NewPaymentProvider("stripe", "Stripe", true, []string{"USD"}, nil)
	if err != nil {
		t.Fatalf("NewPaymentProvider: %v", err)
	}
	if err := env.providers.Save(ctx, nil, provider); err != nil {
		t.Fatalf("save provider: %v", err)
	}
	silent, _ := model.NewPaymentProvider("onemoney", "OneMoney", false, []string{"ZWL"}, nil)
	if err := env.providers.Save(ctx, nil, silent); err != nil {
		t.Fatalf("save provider: %v", err)
	}

	txm := &mockTxManager{}
	env.manager = NewSubscriptionManager(tiers, currencies, env.subs, env.audit, txm, "USD", newTestLogger())
	env.processor = NewWebhookProcessor(env.providers, env.events, env.payments, env.audit,
		env.manager, &fakeFactory{gateways: map[string]adapter.PaymentGateway{"stripe": env.gateway}},
		txm, newTestLogger())
	return env
}

// pendingPayment stores a pending payment carrying the metadata the webhook
// path needs to recover the charge intent.
func (env *webhookTestEnv) pendingPayment(t *testing.T, id, userID string) *model.Payment {
	t.Helper()
	payment, err := model.NewPayment(id, userID, "stripe", dec("4.99"), "USD", map[string]interface{}{
		"tier":          "basic",
		"billing_cycle": "monthly",
	})
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if err := env.payments.Save(context.Background(), nil, payment); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return payment
}

func succeededPayload(eventID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"payment.succeeded","data":{"payment_id":%q,"external_payment_id":"pi_1"}}`, eventID, paymentID))
}

func TestWebhookPaymentSucceeded(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()
	env.pendingPayment(t, "pay-1", "user-1")

	if err := env.processor.Process(ctx, "stripe", succeededPayload("evt_1", "pay-1"), "sig"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	payment, _ := env.payments.FindByID(ctx, nil, "pay-1")
	if payment.Status != model.PaymentStatusCompleted {
		t.Fatalf("payment status = %s, want completed", payment.Status)
	}
	if payment.ExternalPaymentID == nil || *payment.ExternalPaymentID != "pi_1" {
		t.Fatalf("external id = %v, want pi_1", payment.ExternalPaymentID)
	}
	sub, err := env.subs.FindByUser(ctx, nil, "user-1")
	if err != nil {
		t.Fatalf("FindByUser: %v", err)
	}
	if sub.Status != model.SubscriptionStatusActive {
		t.Fatalf("subscription status = %s, want active", sub.Status)
	}
	event, err := env.events.FindByProviderAndEventID(ctx, nil, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("event not recorded: %v", err)
	}
	if !event.Processed {
		t.Fatal("event not marked processed")
	}
}

func TestWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()
	env.pendingPayment(t, "pay-1", "user-1")

	payload := succeededPayload("evt_1", "pay-1")
	if err := env.processor.Process(ctx, "stripe", payload, "sig"); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if err := env.processor.Process(ctx, "stripe", payload, "sig"); err != nil {
		t.Fatalf("duplicate Process: %v", err)
	}
	if got := env.audit.count(model.AuditWebhookProcessed); got != 1 {
		t.Fatalf("webhook audit entries = %d, want 1 (duplicate re-applied)", got)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()
	env.gateway.SignatureValid = false

	err := env.processor.Process(ctx, "stripe", succeededPayload("evt_1", "pay-1"), "bad")
	if !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("err = %v, want ErrWebhookSignature", err)
	}
	if _, err := env.events.FindByProviderAndEventID(ctx, nil, "stripe", "evt_1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("rejected delivery still recorded an event")
	}
}

func TestWebhookUnknownProvider(t *testing.T) {
	env := newWebhookTestEnv(t)

	err := env.processor.Process(context.Background(), "braintree", succeededPayload("evt_1", "pay-1"), "sig")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWebhookProviderWithoutWebhooks(t *testing.T) {
	env := newWebhookTestEnv(t)

	err := env.processor.Process(context.Background(), "onemoney", succeededPayload("evt_1", "pay-1"), "sig")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	env := newWebhookTestEnv(t)

	if err := env.processor.Process(context.Background(), "stripe", []byte("{not json"), "sig"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if err := env.processor.Process(context.Background(), "stripe", []byte(`{"type":"payment.succeeded"}`), "sig"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing event id err = %v, want ErrInvalidArgument", err)
	}
}

func TestWebhookUnknownPaymentRecordsFailure(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()

	// The event references a payment that does not exist. The delivery is
	// acknowledged (nil) so the provider stops retrying, but the event row
	// keeps the failure.
	if err := env.processor.Process(ctx, "stripe", succeededPayload("evt_1", "pay-missing"), "sig"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	event, err := env.events.FindByProviderAndEventID(ctx, nil, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("event not recorded: %v", err)
	}
	if event.Processed {
		t.Fatal("undispatchable event marked processed")
	}
	if event.ErrorMessage == "" {
		t.Fatal("failure recorded without a message")
	}
}

func TestWebhookPaymentFailed(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()
	env.pendingPayment(t, "pay-1", "user-1")

	payload := []byte(`{"id":"evt_2","type":"payment.failed","data":{"payment_id":"pay-1","reason":"card expired"}}`)
	if err := env.processor.Process(ctx, "stripe", payload, "sig"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	payment, _ := env.payments.FindByID(ctx, nil, "pay-1")
	if payment.Status != model.PaymentStatusFailed {
		t.Fatalf("payment status = %s, want failed", payment.Status)
	}
	if payment.ErrorMessage != "card expired" {
		t.Fatalf("error message = %q", payment.ErrorMessage)
	}
}

func TestWebhookSubscriptionCancelled(t *testing.T) {
	env := newWebhookTestEnv(t)
	ctx := context.Background()

	sub, err := env.manager.Create(ctx, nil, "user-1", "basic", model.BillingCycleMonthly, "USD", "stripe")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	external := "sub_ext_1"
	sub.ExternalSubscriptionID = &external
	if err := env.manager.Activate(ctx, nil, sub, "pay-1"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	payload := []byte(`{"id":"evt_3","type":"subscription.cancelled","data":{"external_subscription_id":"sub_ext_1","reason":"user request"}}`)
	if err := env.processor.Process(ctx, "stripe", payload, "sig"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := env.subs.FindByUser(ctx, nil, "user-1")
	if got.Status != model.SubscriptionStatusCancelled || got.AutoRenew {
		t.Fatalf("after cancel webhook: status=%s auto_renew=%v", got.Status, got.AutoRenew)
	}
}
