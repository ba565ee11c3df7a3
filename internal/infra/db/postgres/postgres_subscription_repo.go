package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionCols = `id, user_id, tier_id, status, billing_cycle, currency_code, started_at, expires_at, auto_renew, external_subscription_id, provider, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	s := &model.UserSubscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.TierID, &s.Status, &s.BillingCycle, &s.CurrencyCode,
		&s.StartedAt, &s.ExpiresAt, &s.AutoRenew, &s.ExternalSubscriptionID, &s.Provider,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, qx repository.Tx, userID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM user_subscriptions WHERE user_id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByExternalID(ctx context.Context, qx repository.Tx, externalID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM user_subscriptions WHERE external_subscription_id=$1 LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, externalID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

// Upsert maintains the one-row-per-user invariant: the conflict target is
// user_id, so a re-subscription after expiry rewrites the existing row.
func (r *subscriptionRepo) Upsert(ctx context.Context, qx repository.Tx, s *model.UserSubscription) error {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, tier_id, status, billing_cycle, currency_code, started_at, expires_at, auto_renew, external_subscription_id, provider, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (user_id) DO UPDATE SET
  tier_id=$3, status=$4, billing_cycle=$5, currency_code=$6, started_at=$7, expires_at=$8, auto_renew=$9, external_subscription_id=$10, provider=$11, updated_at=$13;`

	_, err := execSQL(ctx, r.pool, qx, q, s.ID, s.UserID, s.TierID, s.Status, s.BillingCycle, s.CurrencyCode,
		s.StartedAt, s.ExpiresAt, s.AutoRenew, s.ExternalSubscriptionID, s.Provider, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) ListActiveExpired(ctx context.Context, qx repository.Tx, asOf time.Time, limit int) ([]*model.UserSubscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subscriptionCols + ` FROM user_subscriptions WHERE status='active' AND expires_at IS NOT NULL AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2;`
	return r.list(ctx, qx, q, asOf, limit)
}

func (r *subscriptionRepo) ListExpiringAutoRenew(ctx context.Context, qx repository.Tx, cutoff time.Time, limit int) ([]*model.UserSubscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subscriptionCols + ` FROM user_subscriptions WHERE status='active' AND auto_renew=TRUE AND expires_at IS NOT NULL AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2;`
	return r.list(ctx, qx, q, cutoff, limit)
}

func (r *subscriptionRepo) list(ctx context.Context, qx repository.Tx, q string, args ...interface{}) ([]*model.UserSubscription, error) {
	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.UserSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, qx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM user_subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, qx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status model.SubscriptionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = count
	}
	return out, nil
}
