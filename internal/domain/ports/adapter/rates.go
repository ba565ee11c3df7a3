package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource is the outbound port for the external exchange-rate API.
// Best effort: callers must tolerate failure and fall back.
type RateSource interface {
	// FetchRates returns base->symbol rates for the requested symbols.
	// Missing symbols are simply absent from the map.
	FetchRates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, error)
}

// RateCache is the short-lived (from,to) rate cache. Concurrent refreshes
// are last-writer-wins; rates are advisory with a fallback path.
type RateCache interface {
	Get(ctx context.Context, from, to string) (decimal.Decimal, bool)
	Set(ctx context.Context, from, to string, rate decimal.Decimal, ttl time.Duration)
}
