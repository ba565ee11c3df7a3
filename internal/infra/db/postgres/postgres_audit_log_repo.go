package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

var _ repository.AuditLogRepository = (*auditLogRepo)(nil)

type auditLogRepo struct{ pool *pgxpool.Pool }

func NewAuditLogRepo(pool *pgxpool.Pool) *auditLogRepo {
	return &auditLogRepo{pool: pool}
}

func (r *auditLogRepo) Append(ctx context.Context, qx repository.Tx, e *model.AuditEntry) error {
	const q = `
INSERT INTO audit_log (id, user_id, actor_id, action, description, meta, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`

	_, err := execSQL(ctx, r.pool, qx, q, e.ID, e.UserID, e.ActorID, e.Action, e.Description, e.Meta, e.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
