package model

import (
	"time"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
)

// Currency is a supported billing currency. RateToBase is expressed as
// "units of the base currency per one unit of this currency", so the base
// currency itself always carries 1.0.
type Currency struct {
	Code        string // ISO 4217, unique
	Name        string
	Symbol      string
	RateToBase  decimal.Decimal
	IsActive    bool
	LastUpdated time.Time
}

// NewCurrency validates and constructs a currency.
func NewCurrency(code, name, symbol string, rateToBase decimal.Decimal) (*Currency, error) {
	if len(code) != 3 || name == "" || !rateToBase.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	return &Currency{
		Code:        code,
		Name:        name,
		Symbol:      symbol,
		RateToBase:  rateToBase,
		IsActive:    true,
		LastUpdated: time.Now(),
	}, nil
}
