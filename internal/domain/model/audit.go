package model

import "time"

type AuditAction string

const (
	AuditSubscriptionCreated   AuditAction = "subscription_created"
	AuditSubscriptionUpdated   AuditAction = "subscription_updated"
	AuditSubscriptionCancelled AuditAction = "subscription_cancelled"
	AuditTierChanged           AuditAction = "tier_changed"
	AuditPaymentCreated        AuditAction = "payment_created"
	AuditPaymentUpdated        AuditAction = "payment_updated"
	AuditWebhookProcessed      AuditAction = "webhook_processed"
)

// AuditEntry is one append-only record of a billing state transition. The
// billing core only ever writes these; it never reads them back.
type AuditEntry struct {
	ID          string // ULID, sortable by creation time
	UserID      *string
	ActorID     *string // admin/system actor when distinct from the user
	Action      AuditAction
	Description string
	Meta        map[string]interface{}
	CreatedAt   time.Time
}
