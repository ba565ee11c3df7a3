package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

var _ repository.TierRepository = (*tierRepo)(nil)

type tierRepo struct{ pool *pgxpool.Pool }

func NewTierRepo(pool *pgxpool.Pool) *tierRepo {
	return &tierRepo{pool: pool}
}

const tierCols = `id, name, description, features, ai_access, is_active, sort_order`

func scanTier(row pgx.Row) (*model.SubscriptionTier, error) {
	t := &model.SubscriptionTier{}
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Features, &t.AIAccess, &t.IsActive, &t.SortOrder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *tierRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.SubscriptionTier, error) {
	const q = `SELECT ` + tierCols + ` FROM subscription_tiers WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTier(row)
}

func (r *tierRepo) FindByName(ctx context.Context, qx repository.Tx, name string) (*model.SubscriptionTier, error) {
	const q = `SELECT ` + tierCols + ` FROM subscription_tiers WHERE name=$1 AND is_active=TRUE;`
	row, err := pickRow(ctx, r.pool, qx, q, name)
	if err != nil {
		return nil, err
	}
	return scanTier(row)
}

func (r *tierRepo) ListActive(ctx context.Context, qx repository.Tx) ([]*model.SubscriptionTier, error) {
	const q = `SELECT ` + tierCols + ` FROM subscription_tiers WHERE is_active=TRUE ORDER BY sort_order;`
	rows, err := queryRows(ctx, r.pool, qx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.SubscriptionTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *tierRepo) Save(ctx context.Context, qx repository.Tx, t *model.SubscriptionTier) error {
	const q = `
INSERT INTO subscription_tiers (id, name, description, features, ai_access, is_active, sort_order)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name=$2, description=$3, features=$4, ai_access=$5, is_active=$6, sort_order=$7;`

	_, err := execSQL(ctx, r.pool, qx, q, t.ID, t.Name, t.Description, t.Features, t.AIAccess, t.IsActive, t.SortOrder)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

var _ repository.PriceRepository = (*priceRepo)(nil)

type priceRepo struct{ pool *pgxpool.Pool }

func NewPriceRepo(pool *pgxpool.Pool) *priceRepo {
	return &priceRepo{pool: pool}
}

const priceCols = `id, tier_id, currency_code, monthly_price::text, annual_price::text, is_active`

func scanPrice(row pgx.Row) (*model.SubscriptionPrice, error) {
	p := &model.SubscriptionPrice{}
	var monthly string
	var annual *string
	if err := row.Scan(&p.ID, &p.TierID, &p.CurrencyCode, &monthly, &annual, &p.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	m, err := decimal.NewFromString(monthly)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.MonthlyPrice = m
	if annual != nil {
		a, err := decimal.NewFromString(*annual)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.AnnualPrice = &a
	}
	return p, nil
}

func (r *priceRepo) FindByTierAndCurrency(ctx context.Context, qx repository.Tx, tierID, currencyCode string) (*model.SubscriptionPrice, error) {
	const q = `SELECT ` + priceCols + ` FROM subscription_prices WHERE tier_id=$1 AND currency_code=$2 AND is_active=TRUE;`
	row, err := pickRow(ctx, r.pool, qx, q, tierID, currencyCode)
	if err != nil {
		return nil, err
	}
	return scanPrice(row)
}

func (r *priceRepo) ListByTier(ctx context.Context, qx repository.Tx, tierID string) ([]*model.SubscriptionPrice, error) {
	const q = `SELECT ` + priceCols + ` FROM subscription_prices WHERE tier_id=$1 AND is_active=TRUE ORDER BY currency_code;`
	rows, err := queryRows(ctx, r.pool, qx, q, tierID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.SubscriptionPrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *priceRepo) Save(ctx context.Context, qx repository.Tx, p *model.SubscriptionPrice) error {
	var annual *string
	if p.AnnualPrice != nil {
		s := p.AnnualPrice.String()
		annual = &s
	}
	const q = `
INSERT INTO subscription_prices (id, tier_id, currency_code, monthly_price, annual_price, is_active)
VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6)
ON CONFLICT (tier_id, currency_code) DO UPDATE SET
  monthly_price=$4::numeric, annual_price=$5::numeric, is_active=$6;`

	_, err := execSQL(ctx, r.pool, qx, q, p.ID, p.TierID, p.CurrencyCode, p.MonthlyPrice.String(), annual, p.IsActive)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
