package repository

import (
	"context"

	"legacygrid-billing/internal/domain/model"
)

// AuditLogRepository is a write-only sink; the billing core never reads it.
type AuditLogRepository interface {
	Append(ctx context.Context, qx Tx, e *model.AuditEntry) error
}
