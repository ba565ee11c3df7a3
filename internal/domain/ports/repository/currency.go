package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain/model"
)

type CurrencyRepository interface {
	// FindByCode returns an active currency by ISO code.
	FindByCode(ctx context.Context, qx Tx, code string) (*model.Currency, error)
	ListActive(ctx context.Context, qx Tx) ([]*model.Currency, error)
	Save(ctx context.Context, qx Tx, c *model.Currency) error
	// UpdateRate stores a freshly fetched rate-to-base and bumps last_updated.
	UpdateRate(ctx context.Context, qx Tx, code string, rate decimal.Decimal) error
	// Deactivate retires a currency; currencies are never deleted.
	Deactivate(ctx context.Context, qx Tx, code string) error
}
