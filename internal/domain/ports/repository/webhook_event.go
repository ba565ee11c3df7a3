package repository

import (
	"context"

	"legacygrid-billing/internal/domain/model"
)

type WebhookEventRepository interface {
	// Insert records the event, relying on the storage uniqueness constraint
	// on (provider, external_event_id). Returns domain.ErrAlreadyExists when
	// the pair was already recorded; this is the idempotency guarantee and
	// must be a single atomic operation, never check-then-create.
	Insert(ctx context.Context, qx Tx, ev *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, qx Tx, id string) error
	MarkFailed(ctx context.Context, qx Tx, id, errorMessage string) error
	FindByProviderAndEventID(ctx context.Context, qx Tx, provider, externalEventID string) (*model.WebhookEvent, error)
}
