package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, user_id, subscription_id, provider, amount::text, currency_code, status, external_payment_id, error_message, meta, created_at, updated_at, processed_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var amount string
	if err := row.Scan(&p.ID, &p.UserID, &p.SubscriptionID, &p.Provider, &amount, &p.CurrencyCode,
		&p.Status, &p.ExternalPaymentID, &p.ErrorMessage, &p.Meta, &p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Amount = d
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, subscription_id, provider, amount, currency_code, status, external_payment_id, error_message, meta, created_at, updated_at, processed_at
) VALUES (
  $1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (id) DO UPDATE SET
  subscription_id=$3, status=$7, external_payment_id=$8, error_message=$9, meta=$10, updated_at=$12, processed_at=$13;`

	_, err := execSQL(ctx, r.pool, qx, q, p.ID, p.UserID, p.SubscriptionID, p.Provider, p.Amount.StringFixed(2),
		p.CurrencyCode, p.Status, p.ExternalPaymentID, p.ErrorMessage, p.Meta, p.CreatedAt, p.UpdatedAt, p.ProcessedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, qx repository.Tx, provider, externalID string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE provider=$1 AND external_payment_id=$2 LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, provider, externalID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus, externalID *string, errorMessage string, processedAt *time.Time) error {
	const q = `UPDATE payments SET status=$2, external_payment_id=COALESCE($3, external_payment_id), error_message=$4, processed_at=COALESCE($5, processed_at), updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id, status, externalID, errorMessage, processedAt)
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

func (r *paymentRepo) LinkSubscription(ctx context.Context, qx repository.Tx, paymentID, subscriptionID string) error {
	const q = `UPDATE payments SET subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, paymentID, subscriptionID)
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

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE status IN ('pending','processing') AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, qx, q, olderThan, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
