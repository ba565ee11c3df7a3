package model

import (
	"time"

	"legacygrid-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions other
// than the row being reused for a brand-new pending subscription.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// Duration returns the renewal period for a cycle.
func (c BillingCycle) Duration() (time.Duration, error) {
	switch c {
	case BillingCycleMonthly:
		return 30 * 24 * time.Hour, nil
	case BillingCycleAnnual:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, domain.ErrInvalidArgument
	}
}

// UserSubscription is the single subscription row per user. Tier changes and
// re-subscriptions after expiry mutate this row rather than creating a new
// one; history is preserved in the audit log.
type UserSubscription struct {
	ID                     string // UUID
	UserID                 string // unique; one row per user
	TierID                 string
	Status                 SubscriptionStatus
	BillingCycle           BillingCycle
	CurrencyCode           string
	StartedAt              time.Time
	ExpiresAt              *time.Time
	AutoRenew              bool
	ExternalSubscriptionID *string
	Provider               string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewUserSubscription creates a pending subscription for a user.
func NewUserSubscription(id, userID string, tier *SubscriptionTier, cycle BillingCycle, currencyCode, provider string) (*UserSubscription, error) {
	if id == "" || userID == "" || tier.IsZero() || currencyCode == "" {
		return nil, domain.ErrInvalidArgument
	}
	d, err := cycle.Duration()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	expires := now.Add(d)
	return &UserSubscription{
		ID:           id,
		UserID:       userID,
		TierID:       tier.ID,
		Status:       SubscriptionStatusPending,
		BillingCycle: cycle,
		CurrencyCode: currencyCode,
		StartedAt:    now,
		ExpiresAt:    &expires,
		AutoRenew:    true,
		Provider:     provider,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLive reports whether the subscription currently grants entitlements.
func (s *UserSubscription) IsLive(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}
