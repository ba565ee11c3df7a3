package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

var _ repository.ProviderRepository = (*providerRepo)(nil)

type providerRepo struct{ pool *pgxpool.Pool }

func NewProviderRepo(pool *pgxpool.Pool) *providerRepo {
	return &providerRepo{pool: pool}
}

const providerCols = `name, display_name, is_active, supports_webhooks, supported_currencies, config`

func scanProvider(row pgx.Row) (*model.PaymentProvider, error) {
	p := &model.PaymentProvider{}
	if err := row.Scan(&p.Name, &p.DisplayName, &p.IsActive, &p.SupportsWebhooks, &p.SupportedCurrencies, &p.Config); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *providerRepo) FindByName(ctx context.Context, qx repository.Tx, name string) (*model.PaymentProvider, error) {
	const q = `SELECT ` + providerCols + ` FROM payment_providers WHERE name=$1 AND is_active=TRUE;`
	row, err := pickRow(ctx, r.pool, qx, q, name)
	if err != nil {
		return nil, err
	}
	return scanProvider(row)
}

func (r *providerRepo) ListActive(ctx context.Context, qx repository.Tx) ([]*model.PaymentProvider, error) {
	const q = `SELECT ` + providerCols + ` FROM payment_providers WHERE is_active=TRUE ORDER BY name;`
	rows, err := queryRows(ctx, r.pool, qx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *providerRepo) Save(ctx context.Context, qx repository.Tx, p *model.PaymentProvider) error {
	const q = `
INSERT INTO payment_providers (name, display_name, is_active, supports_webhooks, supported_currencies, config)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (name) DO UPDATE SET
  display_name=$2, is_active=$3, supports_webhooks=$4, supported_currencies=$5, config=$6;`

	_, err := execSQL(ctx, r.pool, qx, q, p.Name, p.DisplayName, p.IsActive, p.SupportsWebhooks, p.SupportedCurrencies, p.Config)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
