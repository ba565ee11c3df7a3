package repository

import (
	"context"
	"time"

	"legacygrid-billing/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Payment, error)
	FindByExternalID(ctx context.Context, qx Tx, provider, externalID string) (*model.Payment, error)
	// UpdateStatus persists a status transition; the use case validates
	// monotonicity before calling.
	UpdateStatus(ctx context.Context, qx Tx, id string, status model.PaymentStatus, externalID *string, errorMessage string, processedAt *time.Time) error
	LinkSubscription(ctx context.Context, qx Tx, paymentID, subscriptionID string) error
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
