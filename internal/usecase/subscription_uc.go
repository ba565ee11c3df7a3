// File: internal/usecase/subscription_uc.go
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

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/infra/metrics"
)

// FreeTierName is the tier assigned to users without a paid subscription.
const FreeTierName = "free"

// SubscriptionManager owns the subscription state machine:
// pending -> active -> {cancelled, expired}. The terminal states are final
// except that the same row is reused for a brand-new pending subscription,
// preserving the one-subscription-per-user invariant.
//
// Methods taking a qx participate in the caller's transaction and never open
// their own; batch operations (SweepExpired) own their transaction.
type SubscriptionManager struct {
	tiers      repository.TierRepository
	currencies repository.CurrencyRepository
	subs       repository.SubscriptionRepository
	audit      repository.AuditLogRepository
	txm        repository.TransactionManager
	base       string
	log        *zerolog.Logger
}

func NewSubscriptionManager(tiers repository.TierRepository, currencies repository.CurrencyRepository, subs repository.SubscriptionRepository, audit repository.AuditLogRepository, txm repository.TransactionManager, baseCurrency string, logger *zerolog.Logger) *SubscriptionManager {
	l := logger.With().Str("component", "SubscriptionManager").Logger()
	return &SubscriptionManager{
		tiers:      tiers,
		currencies: currencies,
		subs:       subs,
		audit:      audit,
		txm:        txm,
		base:       baseCurrency,
		log:        &l,
	}
}

// Create upserts the user's single subscription row as pending for the given
// tier and cycle. Unknown tier or currency is a client input error.
func (m *SubscriptionManager) Create(ctx context.Context, qx repository.Tx, userID, tierName string, cycle model.BillingCycle, currencyCode, provider string) (*model.UserSubscription, error) {
	tier, err := m.tiers.FindByName(ctx, qx, tierName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("subscription tier %q not found: %w", tierName, domain.ErrSubscription)
		}
		return nil, err
	}
	if _, err := m.currencies.FindByCode(ctx, qx, currencyCode); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("currency %q not found: %w", currencyCode, domain.ErrSubscription)
		}
		return nil, err
	}
	d, err := cycle.Duration()
	if err != nil {
		return nil, fmt.Errorf("invalid billing cycle %q: %w", cycle, domain.ErrSubscription)
	}

	now := time.Now()
	expires := now.Add(d)

	sub, err := m.subs.FindByUser(ctx, qx, userID)
	switch {
	case err == nil:
		// Reuse the existing row; one subscription per user, history lives
		// in the audit log.
		sub.TierID = tier.ID
		sub.Status = model.SubscriptionStatusPending
		sub.BillingCycle = cycle
		sub.CurrencyCode = currencyCode
		sub.StartedAt = now
		sub.ExpiresAt = &expires
		sub.AutoRenew = true
		sub.Provider = provider
		sub.UpdatedAt = now
	case errors.Is(err, domain.ErrNotFound):
		sub, err = model.NewUserSubscription(uuid.NewString(), userID, tier, cycle, currencyCode, provider)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := m.subs.Upsert(ctx, qx, sub); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, qx, &sub.UserID, nil, model.AuditSubscriptionCreated,
		fmt.Sprintf("Subscription created for tier %q with %s billing", tierName, cycle),
		map[string]interface{}{
			"tier":          tierName,
			"billing_cycle": string(cycle),
			"currency":      currencyCode,
			"expires_at":    expires.Format(time.RFC3339),
		})
	m.log.Info().Str("user_id", userID).Str("tier", tierName).Str("cycle", string(cycle)).Msg("subscription created")
	return sub, nil
}

// Activate flips a pending subscription to active. Activating an already
// active subscription is a no-op, not an error: both the synchronous charge
// path and a later webhook confirmation may attempt it.
func (m *SubscriptionManager) Activate(ctx context.Context, qx repository.Tx, sub *model.UserSubscription, paymentID string) error {
	if sub == nil {
		return domain.ErrInvalidArgument
	}
	if sub.Status == model.SubscriptionStatusActive {
		return nil
	}
	if sub.Status.Terminal() {
		return fmt.Errorf("cannot activate %s subscription: %w", sub.Status, domain.ErrSubscription)
	}
	sub.Status = model.SubscriptionStatusActive
	sub.UpdatedAt = time.Now()
	if err := m.subs.Upsert(ctx, qx, sub); err != nil {
		return err
	}
	m.appendAudit(ctx, qx, &sub.UserID, nil, model.AuditSubscriptionUpdated,
		"Subscription activated",
		map[string]interface{}{"tier_id": sub.TierID, "payment_id": paymentID})
	m.log.Info().Str("user_id", sub.UserID).Str("payment_id", paymentID).Msg("subscription activated")
	return nil
}

// Cancel marks the user's subscription cancelled and disables auto-renew.
// Irreversible without creating a new subscription.
func (m *SubscriptionManager) Cancel(ctx context.Context, qx repository.Tx, userID, reason string, actor *string) error {
	sub, err := m.subs.FindByUser(ctx, qx, userID)
	if err != nil {
		return err
	}
	if sub.Status == model.SubscriptionStatusCancelled {
		return nil
	}
	oldStatus := sub.Status
	sub.Status = model.SubscriptionStatusCancelled
	sub.AutoRenew = false
	sub.UpdatedAt = time.Now()
	if err := m.subs.Upsert(ctx, qx, sub); err != nil {
		return err
	}
	if reason == "" {
		reason = "not specified"
	}
	m.appendAudit(ctx, qx, &sub.UserID, actor, model.AuditSubscriptionCancelled,
		fmt.Sprintf("Subscription cancelled. Reason: %s", reason),
		map[string]interface{}{"old_status": string(oldStatus), "reason": reason})
	m.log.Info().Str("user_id", userID).Str("reason", reason).Msg("subscription cancelled")
	return nil
}

// Upgrade changes the tier in place. Status and expiry are untouched: the
// tier change takes effect immediately, billing realigns at the next renewal.
func (m *SubscriptionManager) Upgrade(ctx context.Context, qx repository.Tx, userID, newTierName string, actor *string) (*model.UserSubscription, error) {
	newTier, err := m.tiers.FindByName(ctx, qx, newTierName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("subscription tier %q not found: %w", newTierName, domain.ErrSubscription)
		}
		return nil, err
	}
	sub, err := m.subs.FindByUser(ctx, qx, userID)
	if err != nil {
		return nil, err
	}
	oldTierID := sub.TierID
	sub.TierID = newTier.ID
	sub.UpdatedAt = time.Now()
	if err := m.subs.Upsert(ctx, qx, sub); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, qx, &sub.UserID, actor, model.AuditTierChanged,
		fmt.Sprintf("Subscription tier changed to %q", newTierName),
		map[string]interface{}{"old_tier_id": oldTierID, "new_tier": newTierName})
	m.log.Info().Str("user_id", userID).Str("new_tier", newTierName).Msg("subscription upgraded")
	return sub, nil
}

// Renew extends the expiry by one billing cycle and re-activates the row.
// Renewal is charge-then-extend: the caller must have collected a successful
// payment via PaymentProcessor before invoking this.
func (m *SubscriptionManager) Renew(ctx context.Context, qx repository.Tx, sub *model.UserSubscription) error {
	if sub == nil {
		return domain.ErrInvalidArgument
	}
	if !sub.AutoRenew {
		return fmt.Errorf("auto-renew disabled: %w", domain.ErrSubscription)
	}
	d, err := sub.BillingCycle.Duration()
	if err != nil {
		return fmt.Errorf("invalid billing cycle %q: %w", sub.BillingCycle, domain.ErrSubscription)
	}
	from := time.Now()
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(from) {
		from = *sub.ExpiresAt
	}
	expires := from.Add(d)
	sub.ExpiresAt = &expires
	sub.Status = model.SubscriptionStatusActive
	sub.UpdatedAt = time.Now()
	if err := m.subs.Upsert(ctx, qx, sub); err != nil {
		return err
	}
	m.appendAudit(ctx, qx, &sub.UserID, nil, model.AuditSubscriptionUpdated,
		fmt.Sprintf("Subscription renewed for %s period", sub.BillingCycle),
		map[string]interface{}{
			"tier_id":        sub.TierID,
			"billing_cycle":  string(sub.BillingCycle),
			"new_expires_at": expires.Format(time.RFC3339),
		})
	return nil
}

// SweepExpired transitions every active row with a past expiry to expired.
// Safe to run concurrently and repeatedly: the query only selects rows still
// active, so a second sweep is a no-op.
func (m *SubscriptionManager) SweepExpired(ctx context.Context) (int, error) {
	count := 0
	err := m.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		expired, err := m.subs.ListActiveExpired(ctx, qx, time.Now(), 500)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		for _, sub := range expired {
			sub.Status = model.SubscriptionStatusExpired
			sub.UpdatedAt = time.Now()
			if err := m.subs.Upsert(ctx, qx, sub); err != nil {
				return err
			}
			m.appendAudit(ctx, qx, &sub.UserID, nil, model.AuditSubscriptionUpdated,
				"Subscription expired",
				map[string]interface{}{"tier_id": sub.TierID})
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.IncSubscriptionsExpired(count)
	}
	return count, nil
}

// StatusCounts reports how many subscription rows sit in each status.
func (m *SubscriptionManager) StatusCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return m.subs.CountByStatus(ctx, nil)
}

// GetOrCreateFree returns the user's subscription, creating a pending
// free-tier one when none exists.
func (m *SubscriptionManager) GetOrCreateFree(ctx context.Context, userID string) (*model.UserSubscription, error) {
	sub, err := m.subs.FindByUser(ctx, nil, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return m.Create(ctx, nil, userID, FreeTierName, model.BillingCycleMonthly, m.base, "")
}

func (m *SubscriptionManager) appendAudit(ctx context.Context, qx repository.Tx, userID, actor *string, action model.AuditAction, description string, meta map[string]interface{}) {
	entry := &model.AuditEntry{
		ID:          ulid.Make().String(),
		UserID:      userID,
		ActorID:     actor,
		Action:      action,
		Description: description,
		Meta:        meta,
		CreatedAt:   time.Now(),
	}
	if err := m.audit.Append(ctx, qx, entry); err != nil {
		// The audit log is a sink; a write failure must not fail the
		// business operation, but it is loud in the logs.
		m.log.Error().Err(err).Str("action", string(action)).Msg("audit append failed")
	}
}
