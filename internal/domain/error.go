package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Billing-specific errors
	ErrConfiguration         = errors.New("invalid provider configuration")
	ErrConversionUnavailable = errors.New("no exchange rate available")
	ErrPricingUnavailable    = errors.New("pricing not defined for tier and currency")
	ErrSubscription          = errors.New("invalid subscription operation")
	ErrPaymentProcessing     = errors.New("payment processing failed")
	ErrWebhookSignature      = errors.New("webhook signature verification failed")
	ErrStatusTransition      = errors.New("illegal payment status transition")

	// Infra-level errors surfaced through repositories
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
)
