package model

import (
	"time"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // row created, gateway not yet called
	PaymentStatusProcessing PaymentStatus = "processing" // handed to gateway, awaiting async result
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// allowedTransitions encodes the monotonic status machine:
// pending -> processing -> {completed|failed}; refunded only from completed.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

// CanTransition reports whether moving from s to next is legal.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal statuses never move backward; refunded is reachable from completed only.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// Payment records one charge attempt. A row is created before the gateway is
// called so every attempt is visible even if the call crashes.
type Payment struct {
	ID                string // UUID
	UserID            string
	SubscriptionID    *string
	Provider          string // PaymentProvider.Name
	Amount            decimal.Decimal
	CurrencyCode      string
	Status            PaymentStatus
	ExternalPaymentID *string
	ErrorMessage      string
	Meta              map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ProcessedAt       *time.Time
}

// NewPayment creates a pending payment for a charge attempt.
func NewPayment(id, userID, provider string, amount decimal.Decimal, currencyCode string, meta map[string]interface{}) (*Payment, error) {
	if id == "" || userID == "" || provider == "" || currencyCode == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return &Payment{
		ID:           id,
		UserID:       userID,
		Provider:     provider,
		Amount:       amount,
		CurrencyCode: currencyCode,
		Status:       PaymentStatusPending,
		Meta:         meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Transition mutates the status, enforcing monotonicity. Transitioning to
// the current status is a no-op, which makes duplicate webhook dispatch and
// the sync-charge/webhook race safe.
func (p *Payment) Transition(next PaymentStatus) error {
	if p.Status == next {
		return nil
	}
	if !p.Status.CanTransition(next) {
		return domain.ErrStatusTransition
	}
	p.Status = next
	p.UpdatedAt = time.Now()
	if next == PaymentStatusCompleted || next == PaymentStatusFailed || next == PaymentStatusRefunded {
		now := time.Now()
		p.ProcessedAt = &now
	}
	return nil
}
