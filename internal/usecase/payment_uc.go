// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/infra/metrics"
)

// ChargeInput is the internal charge operation consumed by the presentation
// layer. The acting user is explicit; callers are already authorized.
type ChargeInput struct {
	UserID       string
	TierName     string
	Cycle        model.BillingCycle
	CurrencyCode string
	Provider     string
	Customer     adapter.CustomerData
}

// PaymentProcessor orchestrates "charge for tier X in currency Y via
// provider Z": price lookup, gateway call, and on success subscription
// creation/activation, all recorded on a Payment row that exists before the
// gateway is ever called.
type PaymentProcessor struct {
	payments   repository.PaymentRepository
	prices     repository.PriceRepository
	tiers      repository.TierRepository
	currencies repository.CurrencyRepository
	providers  repository.ProviderRepository
	audit      repository.AuditLogRepository
	subs       *SubscriptionManager
	factory    adapter.GatewayFactory
	txm        repository.TransactionManager

	demoMode       bool
	autoActivate   bool
	gatewayTimeout time.Duration
	log            *zerolog.Logger
}

type PaymentProcessorOptions struct {
	DemoMode       bool
	AutoActivate   bool
	GatewayTimeout time.Duration
}

func NewPaymentProcessor(
	payments repository.PaymentRepository,
	prices repository.PriceRepository,
	tiers repository.TierRepository,
	currencies repository.CurrencyRepository,
	providers repository.ProviderRepository,
	audit repository.AuditLogRepository,
	subs *SubscriptionManager,
	factory adapter.GatewayFactory,
	txm repository.TransactionManager,
	opts PaymentProcessorOptions,
	logger *zerolog.Logger,
) *PaymentProcessor {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "PaymentProcessor").Logger()
	return &PaymentProcessor{
		payments:       payments,
		prices:         prices,
		tiers:          tiers,
		currencies:     currencies,
		providers:      providers,
		audit:          audit,
		subs:           subs,
		factory:        factory,
		txm:            txm,
		demoMode:       opts.DemoMode,
		autoActivate:   opts.AutoActivate,
		gatewayTimeout: opts.GatewayTimeout,
		log:            &l,
	}
}

// ChargeForTier runs one charge attempt end to end. A gateway-side failure
// is not an error to the caller: it is a Payment in failed status with a
// human-readable message. Error returns are reserved for invalid input and
// infrastructure faults.
func (p *PaymentProcessor) ChargeForTier(ctx context.Context, in ChargeInput) (*model.Payment, error) {
	tier, err := p.tiers.FindByName(ctx, nil, in.TierName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("subscription tier %q not found: %w", in.TierName, domain.ErrSubscription)
		}
		return nil, err
	}
	currency, err := p.currencies.FindByCode(ctx, nil, in.CurrencyCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("currency %q not found: %w", in.CurrencyCode, domain.ErrSubscription)
		}
		return nil, err
	}
	provider, err := p.providers.FindByName(ctx, nil, in.Provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("unknown payment provider %q: %w", in.Provider, domain.ErrConfiguration)
		}
		return nil, err
	}

	price, err := p.prices.FindByTierAndCurrency(ctx, nil, tier.ID, currency.Code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no price for tier %q in %s: %w", in.TierName, currency.Code, domain.ErrPricingUnavailable)
		}
		return nil, err
	}
	amount, err := price.PriceFor(in.Cycle)
	if err != nil {
		return nil, fmt.Errorf("tier %q, cycle %q in %s: %w", in.TierName, in.Cycle, currency.Code, err)
	}

	// The Payment row exists before any external call so every attempted
	// charge is recorded even if the gateway call crashes.
	payment, err := model.NewPayment(uuid.NewString(), in.UserID, provider.Name, amount, currency.Code, map[string]interface{}{
		"tier":          in.TierName,
		"billing_cycle": string(in.Cycle),
	})
	if err != nil {
		return nil, err
	}
	if err := p.payments.Save(ctx, nil, payment); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(payment.Status))
	p.appendAudit(ctx, nil, payment, model.AuditPaymentCreated,
		fmt.Sprintf("Payment created for %s subscription", in.TierName))

	if p.demoMode {
		return p.completeAndGrant(ctx, payment, in, "demo_"+payment.ID, nil)
	}

	if !provider.SupportsCurrency(currency.Code) {
		p.failPayment(ctx, payment, fmt.Sprintf("currency %s not supported by provider %s", currency.Code, provider.Name))
		return payment, nil
	}

	gateway, err := p.factory.Resolve(provider)
	if err != nil {
		p.failPayment(ctx, payment, fmt.Sprintf("gateway unavailable: %v", err))
		return payment, fmt.Errorf("resolve gateway %q: %w", provider.Name, err)
	}
	if !supportsCurrency(gateway, currency.Code) {
		p.failPayment(ctx, payment, fmt.Sprintf("currency %s not supported by %s gateway", currency.Code, gateway.Name()))
		return payment, nil
	}

	result := p.safeCreatePayment(ctx, gateway, amount, currency.Code, in.Customer)
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "payment declined by provider"
		}
		p.failPayment(ctx, payment, msg)
		return payment, nil
	}

	return p.completeAndGrant(ctx, payment, in, result.TransactionID, result.Metadata)
}

// RenewSubscription runs one renewal charge for an active auto-renew
// subscription. Unlike ChargeForTier it extends the current period via
// Renew instead of restarting it, so renewing a few hours before expiry
// does not shorten the subscription. Single attempt; a failed charge
// leaves the row untouched for the expiry sweep to collect.
func (p *PaymentProcessor) RenewSubscription(ctx context.Context, sub *model.UserSubscription, customer adapter.CustomerData) (*model.Payment, error) {
	if sub == nil || !sub.AutoRenew {
		return nil, fmt.Errorf("subscription not eligible for renewal: %w", domain.ErrSubscription)
	}
	tier, err := p.tiers.FindByID(ctx, nil, sub.TierID)
	if err != nil {
		return nil, err
	}
	provider, err := p.providers.FindByName(ctx, nil, sub.Provider)
	if err != nil {
		return nil, fmt.Errorf("renewal provider %q: %w", sub.Provider, err)
	}
	price, err := p.prices.FindByTierAndCurrency(ctx, nil, tier.ID, sub.CurrencyCode)
	if err != nil {
		return nil, err
	}
	amount, err := price.PriceFor(sub.BillingCycle)
	if err != nil {
		return nil, err
	}

	payment, err := model.NewPayment(uuid.NewString(), sub.UserID, provider.Name, amount, sub.CurrencyCode, map[string]interface{}{
		"tier":          tier.Name,
		"billing_cycle": string(sub.BillingCycle),
		"renewal":       true,
	})
	if err != nil {
		return nil, err
	}
	if err := p.payments.Save(ctx, nil, payment); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(payment.Status))
	p.appendAudit(ctx, nil, payment, model.AuditPaymentCreated,
		fmt.Sprintf("Renewal payment created for tier %q", tier.Name))

	externalID := "demo_" + payment.ID
	if !p.demoMode {
		gateway, err := p.factory.Resolve(provider)
		if err != nil {
			p.failPayment(ctx, payment, fmt.Sprintf("gateway unavailable: %v", err))
			return payment, fmt.Errorf("resolve gateway %q: %w", provider.Name, err)
		}
		result := p.safeCreatePayment(ctx, gateway, amount, sub.CurrencyCode, customer)
		if !result.Success {
			msg := result.ErrorMessage
			if msg == "" {
				msg = "renewal declined by provider"
			}
			p.failPayment(ctx, payment, msg)
			return payment, nil
		}
		externalID = result.TransactionID
	}

	err = p.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		if err := payment.Transition(model.PaymentStatusCompleted); err != nil {
			return err
		}
		payment.ExternalPaymentID = &externalID
		if err := p.payments.UpdateStatus(ctx, qx, payment.ID, payment.Status, &externalID, "", payment.ProcessedAt); err != nil {
			return err
		}
		if err := p.subs.Renew(ctx, qx, sub); err != nil {
			return err
		}
		if err := p.payments.LinkSubscription(ctx, qx, payment.ID, sub.ID); err != nil {
			return err
		}
		payment.SubscriptionID = &sub.ID
		p.appendAudit(ctx, qx, payment, model.AuditPaymentUpdated, "Renewal payment completed")
		return nil
	})
	if err != nil {
		return payment, err
	}
	metrics.IncPayment(string(model.PaymentStatusCompleted))
	p.log.Info().Str("payment_id", payment.ID).Str("user_id", sub.UserID).Msg("subscription renewed")
	return payment, nil
}

// Refund refunds a completed payment via its gateway; nil amount means full.
func (p *PaymentProcessor) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal, actor *string) (*model.Payment, error) {
	payment, err := p.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("payment %s is %s, only completed payments can be refunded: %w", paymentID, payment.Status, domain.ErrInvalidArgument)
	}
	if payment.ExternalPaymentID == nil {
		return nil, fmt.Errorf("payment %s has no external id: %w", paymentID, domain.ErrInvalidArgument)
	}
	provider, err := p.providers.FindByName(ctx, nil, payment.Provider)
	if err != nil {
		return nil, err
	}
	gateway, err := p.factory.Resolve(provider)
	if err != nil {
		return nil, err
	}

	result := gateway.RefundPayment(ctx, *payment.ExternalPaymentID, amount)
	if !result.Success {
		return payment, fmt.Errorf("refund failed: %s: %w", result.ErrorMessage, domain.ErrPaymentProcessing)
	}
	if err := payment.Transition(model.PaymentStatusRefunded); err != nil {
		return payment, err
	}
	if err := p.payments.UpdateStatus(ctx, nil, payment.ID, payment.Status, nil, "", payment.ProcessedAt); err != nil {
		return payment, err
	}
	metrics.IncPayment(string(payment.Status))
	p.appendAuditActor(ctx, nil, payment, actor, model.AuditPaymentUpdated, "Payment refunded")
	p.log.Info().Str("payment_id", payment.ID).Msg("payment refunded")
	return payment, nil
}

// VerifyPending re-checks a pending/processing payment at the gateway and
// finalizes it. Used by the reconciliation path when no webhook arrived.
func (p *PaymentProcessor) VerifyPending(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := p.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.Terminal() || payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}
	if payment.ExternalPaymentID == nil {
		return payment, nil
	}
	provider, err := p.providers.FindByName(ctx, nil, payment.Provider)
	if err != nil {
		return nil, err
	}
	gateway, err := p.factory.Resolve(provider)
	if err != nil {
		return nil, err
	}
	result := gateway.VerifyPayment(ctx, *payment.ExternalPaymentID)
	if !result.Success {
		p.failPayment(ctx, payment, result.ErrorMessage)
		return payment, nil
	}
	in := chargeInputFromPayment(payment)
	return p.completeAndGrant(ctx, payment, in, result.TransactionID, result.Metadata)
}

// completeAndGrant marks the payment completed and grants the subscription
// inside one transaction, so a crash cannot leave a completed payment
// attached to a still-pending subscription.
func (p *PaymentProcessor) completeAndGrant(ctx context.Context, payment *model.Payment, in ChargeInput, externalID string, meta map[string]string) (*model.Payment, error) {
	err := p.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		if err := payment.Transition(model.PaymentStatusCompleted); err != nil {
			return err
		}
		payment.ExternalPaymentID = &externalID
		for k, v := range meta {
			payment.Meta[k] = v
		}
		if err := p.payments.UpdateStatus(ctx, qx, payment.ID, payment.Status, &externalID, "", payment.ProcessedAt); err != nil {
			return err
		}

		sub, err := p.subs.Create(ctx, qx, in.UserID, in.TierName, in.Cycle, in.CurrencyCode, in.Provider)
		if err != nil {
			return err
		}
		if p.autoActivate || p.demoMode {
			if err := p.subs.Activate(ctx, qx, sub, payment.ID); err != nil {
				return err
			}
		}
		if err := p.payments.LinkSubscription(ctx, qx, payment.ID, sub.ID); err != nil {
			return err
		}
		payment.SubscriptionID = &sub.ID
		p.appendAudit(ctx, qx, payment, model.AuditPaymentUpdated, "Payment completed")
		return nil
	})
	if err != nil {
		return payment, err
	}
	metrics.IncPayment(string(model.PaymentStatusCompleted))
	p.log.Info().Str("payment_id", payment.ID).Str("user_id", payment.UserID).
		Str("amount", payment.Amount.StringFixed(2)).Str("currency", payment.CurrencyCode).
		Msg("payment completed")
	return payment, nil
}

// safeCreatePayment wraps the gateway call with a timeout and a panic guard:
// whatever happens inside the adapter, the charge attempt resolves to a
// truthful PaymentResult instead of propagating raw.
func (p *PaymentProcessor) safeCreatePayment(ctx context.Context, gateway adapter.PaymentGateway, amount decimal.Decimal, currency string, customer adapter.CustomerData) (result adapter.PaymentResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("gateway", gateway.Name()).Msg("gateway panicked during createPayment")
			result = adapter.PaymentResult{Success: false, ErrorMessage: fmt.Sprintf("gateway error: %v", r)}
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, p.gatewayTimeout)
	defer cancel()

	start := time.Now()
	result = gateway.CreatePayment(ctx, amount, currency, customer)
	metrics.ObserveGatewayLatency(gateway.Name(), "create_payment", result.Success, time.Since(start))

	if !result.Success && result.ErrorMessage == "" && ctx.Err() != nil {
		result.ErrorMessage = fmt.Sprintf("gateway timed out after %s", p.gatewayTimeout)
	}
	return result
}

// failPayment leaves the row in a terminal, truthful state. It must never
// return the payment to pending.
func (p *PaymentProcessor) failPayment(ctx context.Context, payment *model.Payment, msg string) {
	if err := payment.Transition(model.PaymentStatusFailed); err != nil {
		p.log.Error().Err(err).Str("payment_id", payment.ID).Msg("illegal transition while failing payment")
		return
	}
	payment.ErrorMessage = msg
	if err := p.payments.UpdateStatus(ctx, nil, payment.ID, payment.Status, nil, msg, payment.ProcessedAt); err != nil {
		p.log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to persist payment failure")
	}
	metrics.IncPayment(string(payment.Status))
	p.appendAudit(ctx, nil, payment, model.AuditPaymentUpdated, "Payment failed: "+msg)
	p.log.Warn().Str("payment_id", payment.ID).Str("reason", msg).Msg("payment failed")
}

func (p *PaymentProcessor) appendAudit(ctx context.Context, qx repository.Tx, payment *model.Payment, action model.AuditAction, description string) {
	p.appendAuditActor(ctx, qx, payment, nil, action, description)
}

func (p *PaymentProcessor) appendAuditActor(ctx context.Context, qx repository.Tx, payment *model.Payment, actor *string, action model.AuditAction, description string) {
	entry := &model.AuditEntry{
		ID:          ulid.Make().String(),
		UserID:      &payment.UserID,
		ActorID:     actor,
		Action:      action,
		Description: description,
		Meta: map[string]interface{}{
			"payment_id": payment.ID,
			"amount":     payment.Amount.StringFixed(2),
			"currency":   payment.CurrencyCode,
			"provider":   payment.Provider,
			"status":     string(payment.Status),
		},
		CreatedAt: time.Now(),
	}
	if err := p.audit.Append(ctx, qx, entry); err != nil {
		p.log.Error().Err(err).Str("action", string(action)).Msg("audit append failed")
	}
}

func supportsCurrency(g adapter.PaymentGateway, code string) bool {
	for _, c := range g.SupportedCurrencies() {
		if c == code {
			return true
		}
	}
	return false
}

func chargeInputFromPayment(payment *model.Payment) ChargeInput {
	in := ChargeInput{
		UserID:       payment.UserID,
		CurrencyCode: payment.CurrencyCode,
		Provider:     payment.Provider,
	}
	if tier, ok := payment.Meta["tier"].(string); ok {
		in.TierName = tier
	}
	if cycle, ok := payment.Meta["billing_cycle"].(string); ok {
		in.Cycle = model.BillingCycle(cycle)
	}
	return in
}
