package repository

import (
	"context"

	"legacygrid-billing/internal/domain/model"
)

type TierRepository interface {
	FindByID(ctx context.Context, qx Tx, id string) (*model.SubscriptionTier, error)
	// FindByName returns an active tier by its unique name.
	FindByName(ctx context.Context, qx Tx, name string) (*model.SubscriptionTier, error)
	ListActive(ctx context.Context, qx Tx) ([]*model.SubscriptionTier, error)
	Save(ctx context.Context, qx Tx, t *model.SubscriptionTier) error
}

type PriceRepository interface {
	// FindByTierAndCurrency resolves the active price-list row for a
	// (tier, currency) pair.
	FindByTierAndCurrency(ctx context.Context, qx Tx, tierID, currencyCode string) (*model.SubscriptionPrice, error)
	ListByTier(ctx context.Context, qx Tx, tierID string) ([]*model.SubscriptionPrice, error)
	Save(ctx context.Context, qx Tx, p *model.SubscriptionPrice) error
}
