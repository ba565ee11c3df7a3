package model

import (
	"time"

	"legacygrid-billing/internal/domain"
)

// Well-known webhook event types.
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// WebhookEvent is one provider callback. (Provider, ExternalEventID) is the
// idempotency key, enforced by a storage-layer uniqueness constraint.
type WebhookEvent struct {
	ID              string // ULID
	Provider        string // PaymentProvider.Name
	EventType       string
	ExternalEventID string
	Payload         []byte
	Processed       bool
	ErrorMessage    string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// NewWebhookEvent records the first receipt of a provider callback.
func NewWebhookEvent(id, provider, eventType, externalEventID string, payload []byte) (*WebhookEvent, error) {
	if id == "" || provider == "" || externalEventID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &WebhookEvent{
		ID:              id,
		Provider:        provider,
		EventType:       eventType,
		ExternalEventID: externalEventID,
		Payload:         payload,
		CreatedAt:       time.Now(),
	}, nil
}
