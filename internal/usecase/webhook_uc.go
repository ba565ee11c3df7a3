// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/infra/metrics"
)

// webhookEnvelope is the minimal provider-neutral shape the processor needs.
// Everything else in the payload stays opaque and is stored verbatim.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ExternalPaymentID      string `json:"external_payment_id"`
		PaymentID              string `json:"payment_id"`
		ExternalSubscriptionID string `json:"external_subscription_id"`
		Reason                 string `json:"reason"`
	} `json:"data"`
}

// WebhookProcessor consumes asynchronous provider callbacks exactly once per
// (provider, externalEventID). The uniqueness constraint on that pair at the
// storage layer is the sole dedup mechanism; duplicate concurrent deliveries
// race on the insert, and the loser sees ErrAlreadyExists.
type WebhookProcessor struct {
	providers repository.ProviderRepository
	events    repository.WebhookEventRepository
	payments  repository.PaymentRepository
	audit     repository.AuditLogRepository
	subs      *SubscriptionManager
	factory   adapter.GatewayFactory
	txm       repository.TransactionManager
	log       *zerolog.Logger
}

func NewWebhookProcessor(
	providers repository.ProviderRepository,
	events repository.WebhookEventRepository,
	payments repository.PaymentRepository,
	audit repository.AuditLogRepository,
	subs *SubscriptionManager,
	factory adapter.GatewayFactory,
	txm repository.TransactionManager,
	logger *zerolog.Logger,
) *WebhookProcessor {
	l := logger.With().Str("component", "WebhookProcessor").Logger()
	return &WebhookProcessor{
		providers: providers,
		events:    events,
		payments:  payments,
		audit:     audit,
		subs:      subs,
		factory:   factory,
		txm:       txm,
		log:       &l,
	}
}

// Process handles one delivery. Returned errors map to boundary rejections:
// ErrNotFound (unknown/inactive provider), ErrWebhookSignature and
// ErrInvalidArgument (client errors, no event record is created). Dispatch
// failures after the event is recorded are NOT errors: the event row keeps
// processed=false with the message, and the provider gets a success so it
// stops redelivering an event we will never be able to apply.
func (w *WebhookProcessor) Process(ctx context.Context, providerName string, payload []byte, signature string) error {
	provider, err := w.providers.FindByName(ctx, nil, providerName)
	if err != nil {
		return err
	}
	if !provider.SupportsWebhooks {
		return fmt.Errorf("provider %q does not deliver webhooks: %w", providerName, domain.ErrNotFound)
	}

	gateway, err := w.factory.Resolve(provider)
	if err != nil {
		return err
	}
	if !gateway.VerifyWebhookSignature(payload, signature) {
		metrics.IncWebhookEvent(providerName, "unknown", "bad_signature")
		return fmt.Errorf("provider %q: %w", providerName, domain.ErrWebhookSignature)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", domain.ErrInvalidArgument)
	}
	if env.ID == "" {
		return fmt.Errorf("webhook payload missing event id: %w", domain.ErrInvalidArgument)
	}

	event, err := model.NewWebhookEvent(ulid.Make().String(), provider.Name, env.Type, env.ID, payload)
	if err != nil {
		return err
	}
	if err := w.events.Insert(ctx, nil, event); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Duplicate delivery: already recorded, nothing to redo.
			metrics.IncWebhookEvent(provider.Name, env.Type, "duplicate")
			w.log.Debug().Str("provider", provider.Name).Str("event_id", env.ID).Msg("duplicate webhook delivery ignored")
			return nil
		}
		return err
	}

	dispatchErr := w.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		if err := w.dispatch(ctx, qx, provider, &env); err != nil {
			return err
		}
		return w.events.MarkProcessed(ctx, qx, event.ID)
	})
	if dispatchErr != nil {
		// Application-side failure: keep the event for manual investigation
		// but do not make the provider retry forever.
		if err := w.events.MarkFailed(ctx, nil, event.ID, dispatchErr.Error()); err != nil {
			w.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to record webhook dispatch failure")
		}
		metrics.IncWebhookEvent(provider.Name, env.Type, "failed")
		w.log.Error().Err(dispatchErr).Str("provider", provider.Name).
			Str("event_type", env.Type).Str("event_id", env.ID).
			Msg("webhook dispatch failed")
		return nil
	}

	metrics.IncWebhookEvent(provider.Name, env.Type, "processed")
	return nil
}

func (w *WebhookProcessor) dispatch(ctx context.Context, qx repository.Tx, provider *model.PaymentProvider, env *webhookEnvelope) error {
	switch env.Type {
	case model.EventPaymentSucceeded:
		return w.applyPaymentSucceeded(ctx, qx, provider, env)
	case model.EventPaymentFailed:
		return w.applyPaymentFailed(ctx, qx, provider, env)
	case model.EventSubscriptionCancelled:
		return w.applySubscriptionCancelled(ctx, qx, provider, env)
	default:
		return fmt.Errorf("unhandled event type %q", env.Type)
	}
}

func (w *WebhookProcessor) applyPaymentSucceeded(ctx context.Context, qx repository.Tx, provider *model.PaymentProvider, env *webhookEnvelope) error {
	payment, err := w.lookupPayment(ctx, qx, provider, env)
	if err != nil {
		return err
	}
	if payment.Status != model.PaymentStatusCompleted {
		if err := payment.Transition(model.PaymentStatusCompleted); err != nil {
			return fmt.Errorf("payment %s: %w", payment.ID, err)
		}
		var external *string
		if env.Data.ExternalPaymentID != "" {
			external = &env.Data.ExternalPaymentID
		}
		if err := w.payments.UpdateStatus(ctx, qx, payment.ID, payment.Status, external, "", payment.ProcessedAt); err != nil {
			return err
		}
		metrics.IncPayment(string(payment.Status))
	}

	// Activate the linked subscription; create it from the payment metadata
	// when the sync path never got that far. Both paths are idempotent.
	sub, err := w.subs.subs.FindByUser(ctx, qx, payment.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		in := chargeInputFromPayment(payment)
		sub, err = w.subs.Create(ctx, qx, in.UserID, in.TierName, in.Cycle, in.CurrencyCode, in.Provider)
	}
	if err != nil {
		return err
	}
	if err := w.subs.Activate(ctx, qx, sub, payment.ID); err != nil {
		return err
	}
	if payment.SubscriptionID == nil {
		if err := w.payments.LinkSubscription(ctx, qx, payment.ID, sub.ID); err != nil {
			return err
		}
	}
	w.appendAudit(ctx, qx, payment.UserID, env, "Webhook confirmed payment; subscription active")
	return nil
}

func (w *WebhookProcessor) applyPaymentFailed(ctx context.Context, qx repository.Tx, provider *model.PaymentProvider, env *webhookEnvelope) error {
	payment, err := w.lookupPayment(ctx, qx, provider, env)
	if err != nil {
		return err
	}
	if payment.Status.Terminal() {
		return nil
	}
	if err := payment.Transition(model.PaymentStatusFailed); err != nil {
		return fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	reason := env.Data.Reason
	if reason == "" {
		reason = "payment failed at provider"
	}
	if err := w.payments.UpdateStatus(ctx, qx, payment.ID, payment.Status, nil, reason, payment.ProcessedAt); err != nil {
		return err
	}
	metrics.IncPayment(string(payment.Status))
	w.appendAudit(ctx, qx, payment.UserID, env, "Webhook reported payment failure: "+reason)
	return nil
}

func (w *WebhookProcessor) applySubscriptionCancelled(ctx context.Context, qx repository.Tx, provider *model.PaymentProvider, env *webhookEnvelope) error {
	if env.Data.ExternalSubscriptionID == "" {
		return fmt.Errorf("event %s carries no external subscription id", env.ID)
	}
	sub, err := w.subs.subs.FindByExternalID(ctx, qx, env.Data.ExternalSubscriptionID)
	if err != nil {
		return fmt.Errorf("subscription %q: %w", env.Data.ExternalSubscriptionID, err)
	}
	reason := env.Data.Reason
	if reason == "" {
		reason = "cancelled at provider"
	}
	if err := w.subs.Cancel(ctx, qx, sub.UserID, reason, nil); err != nil {
		return err
	}
	w.appendAudit(ctx, qx, sub.UserID, env, "Webhook cancelled subscription: "+reason)
	return nil
}

func (w *WebhookProcessor) lookupPayment(ctx context.Context, qx repository.Tx, provider *model.PaymentProvider, env *webhookEnvelope) (*model.Payment, error) {
	if env.Data.ExternalPaymentID != "" {
		p, err := w.payments.FindByExternalID(ctx, qx, provider.Name, env.Data.ExternalPaymentID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if env.Data.PaymentID != "" {
		return w.payments.FindByID(ctx, qx, env.Data.PaymentID)
	}
	return nil, fmt.Errorf("event %s references no known payment: %w", env.ID, domain.ErrNotFound)
}

func (w *WebhookProcessor) appendAudit(ctx context.Context, qx repository.Tx, userID string, env *webhookEnvelope, description string) {
	entry := &model.AuditEntry{
		ID:          ulid.Make().String(),
		UserID:      &userID,
		Action:      model.AuditWebhookProcessed,
		Description: description,
		Meta: map[string]interface{}{
			"event_type":        env.Type,
			"external_event_id": env.ID,
		},
		CreatedAt: time.Now(),
	}
	if err := w.audit.Append(ctx, qx, entry); err != nil {
		w.log.Error().Err(err).Str("event_id", env.ID).Msg("audit append failed")
	}
}
