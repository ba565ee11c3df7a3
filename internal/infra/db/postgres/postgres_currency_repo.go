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

var _ repository.CurrencyRepository = (*currencyRepo)(nil)

type currencyRepo struct{ pool *pgxpool.Pool }

func NewCurrencyRepo(pool *pgxpool.Pool) *currencyRepo {
	return &currencyRepo{pool: pool}
}

// Rates are NUMERIC in storage; they go over the wire as text so the
// decimal never rides through a float.
const currencyCols = `code, name, symbol, rate_to_base::text, is_active, last_updated`

func scanCurrency(row pgx.Row) (*model.Currency, error) {
	c := &model.Currency{}
	var rate string
	if err := row.Scan(&c.Code, &c.Name, &c.Symbol, &rate, &c.IsActive, &c.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	c.RateToBase = d
	return c, nil
}

func (r *currencyRepo) FindByCode(ctx context.Context, qx repository.Tx, code string) (*model.Currency, error) {
	const q = `SELECT ` + currencyCols + ` FROM currencies WHERE code=$1 AND is_active=TRUE;`
	row, err := pickRow(ctx, r.pool, qx, q, code)
	if err != nil {
		return nil, err
	}
	return scanCurrency(row)
}

func (r *currencyRepo) ListActive(ctx context.Context, qx repository.Tx) ([]*model.Currency, error) {
	const q = `SELECT ` + currencyCols + ` FROM currencies WHERE is_active=TRUE ORDER BY code;`
	rows, err := queryRows(ctx, r.pool, qx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *currencyRepo) Save(ctx context.Context, qx repository.Tx, c *model.Currency) error {
	const q = `
INSERT INTO currencies (code, name, symbol, rate_to_base, is_active, last_updated)
VALUES ($1,$2,$3,$4::numeric,$5,$6)
ON CONFLICT (code) DO UPDATE SET
  name=$2, symbol=$3, rate_to_base=$4::numeric, is_active=$5, last_updated=$6;`

	_, err := execSQL(ctx, r.pool, qx, q, c.Code, c.Name, c.Symbol, c.RateToBase.String(), c.IsActive, c.LastUpdated)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *currencyRepo) UpdateRate(ctx context.Context, qx repository.Tx, code string, rate decimal.Decimal) error {
	const q = `UPDATE currencies SET rate_to_base=$2::numeric, last_updated=NOW() WHERE code=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, code, rate.String())
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *currencyRepo) Deactivate(ctx context.Context, qx repository.Tx, code string) error {
	const q = `UPDATE currencies SET is_active=FALSE, last_updated=NOW() WHERE code=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, code)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
