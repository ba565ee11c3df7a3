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

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

const webhookEventCols = `id, provider, event_type, external_event_id, payload, processed, error_message, created_at, processed_at`

// Insert relies on the unique index on (provider, external_event_id). A
// duplicate delivery surfaces as ErrAlreadyExists; there is no read-first
// check, so concurrent duplicates cannot both get through.
func (r *webhookEventRepo) Insert(ctx context.Context, qx repository.Tx, ev *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (id, provider, event_type, external_event_id, payload, processed, error_message, created_at, processed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	_, err := execSQL(ctx, r.pool, qx, q, ev.ID, ev.Provider, ev.EventType, ev.ExternalEventID,
		ev.Payload, ev.Processed, ev.ErrorMessage, ev.CreatedAt, ev.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, qx repository.Tx, id string) error {
	const q = `UPDATE webhook_events SET processed=TRUE, error_message='', processed_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id)
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

func (r *webhookEventRepo) MarkFailed(ctx context.Context, qx repository.Tx, id, errorMessage string) error {
	const q = `UPDATE webhook_events SET processed=FALSE, error_message=$2, processed_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id, errorMessage)
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

func (r *webhookEventRepo) FindByProviderAndEventID(ctx context.Context, qx repository.Tx, provider, externalEventID string) (*model.WebhookEvent, error) {
	const q = `SELECT ` + webhookEventCols + ` FROM webhook_events WHERE provider=$1 AND external_event_id=$2;`
	row, err := pickRow(ctx, r.pool, qx, q, provider, externalEventID)
	if err != nil {
		return nil, err
	}

	ev := &model.WebhookEvent{}
	if err := row.Scan(&ev.ID, &ev.Provider, &ev.EventType, &ev.ExternalEventID, &ev.Payload,
		&ev.Processed, &ev.ErrorMessage, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return ev, nil
}
