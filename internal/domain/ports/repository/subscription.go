package repository

import (
	"context"
	"time"

	"legacygrid-billing/internal/domain/model"
)

type SubscriptionRepository interface {
	FindByUser(ctx context.Context, qx Tx, userID string) (*model.UserSubscription, error)
	FindByExternalID(ctx context.Context, qx Tx, externalID string) (*model.UserSubscription, error)
	// Upsert writes the single subscription row per user
	// (insert, or update in place on user_id conflict).
	Upsert(ctx context.Context, qx Tx, s *model.UserSubscription) error
	// ListActiveExpired returns active rows whose expiry is before asOf.
	ListActiveExpired(ctx context.Context, qx Tx, asOf time.Time, limit int) ([]*model.UserSubscription, error)
	// ListExpiringAutoRenew returns active auto-renew rows expiring before the cutoff.
	ListExpiringAutoRenew(ctx context.Context, qx Tx, cutoff time.Time, limit int) ([]*model.UserSubscription, error)
	CountByStatus(ctx context.Context, qx Tx) (map[model.SubscriptionStatus]int, error)
}
