package repository

import (
	"context"

	"legacygrid-billing/internal/domain/model"
)

type ProviderRepository interface {
	// FindByName returns an active provider by its unique name.
	FindByName(ctx context.Context, qx Tx, name string) (*model.PaymentProvider, error)
	ListActive(ctx context.Context, qx Tx) ([]*model.PaymentProvider, error)
	Save(ctx context.Context, qx Tx, p *model.PaymentProvider) error
}
