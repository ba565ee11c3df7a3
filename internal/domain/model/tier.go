package model

import (
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
)

// SubscriptionTier is a purchasable plan identity. Feature sets may change
// without affecting live subscriptions' billing; only entitlement checks see
// the new set.
type SubscriptionTier struct {
	ID          string
	Name        string // unique
	Description string
	Features    []string
	AIAccess    bool
	IsActive    bool
	SortOrder   int
}

func (t *SubscriptionTier) IsZero() bool { return t == nil || t.ID == "" }

// HasFeature checks tier entitlement for a named feature.
func (t *SubscriptionTier) HasFeature(name string) bool {
	for _, f := range t.Features {
		if f == name {
			return true
		}
	}
	return false
}

// SubscriptionPrice is one row of the price list, unique per (tier, currency).
// AnnualPrice is nil when the tier is not sold annually in that currency.
type SubscriptionPrice struct {
	ID           string
	TierID       string
	CurrencyCode string
	MonthlyPrice decimal.Decimal
	AnnualPrice  *decimal.Decimal
	IsActive     bool
}

// PriceFor returns the price column for the given cycle.
// A missing annual price is a hard error, never a silent monthly fallback.
func (p *SubscriptionPrice) PriceFor(cycle BillingCycle) (decimal.Decimal, error) {
	switch cycle {
	case BillingCycleMonthly:
		return p.MonthlyPrice, nil
	case BillingCycleAnnual:
		if p.AnnualPrice == nil {
			return decimal.Zero, domain.ErrPricingUnavailable
		}
		return *p.AnnualPrice, nil
	default:
		return decimal.Zero, domain.ErrInvalidArgument
	}
}

// NewSubscriptionTier validates and constructs a tier.
func NewSubscriptionTier(id, name, description string, features []string, aiAccess bool, sortOrder int) (*SubscriptionTier, error) {
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionTier{
		ID:          id,
		Name:        name,
		Description: description,
		Features:    features,
		AIAccess:    aiAccess,
		IsActive:    true,
		SortOrder:   sortOrder,
	}, nil
}
