package redis

import (
	"context"
	"time"

	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/infra/metrics"

	"github.com/shopspring/decimal"
)

// RateCache keeps resolved exchange rates in Redis under "rate:FROM:TO".
// Misses and decode failures are treated the same; the converter falls
// through to the stored composition.
type RateCache struct {
	client RedisClient
}

var _ adapter.RateCache = (*RateCache)(nil)

func NewRateCache(client RedisClient) *RateCache {
	return &RateCache{client: client}
}

func rateKey(from, to string) string { return "rate:" + from + ":" + to }

func (c *RateCache) Get(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	raw, err := c.client.Get(ctx, rateKey(from, to))
	if err != nil {
		metrics.IncCacheRequest("rate", "miss")
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.Sign() <= 0 {
		metrics.IncCacheRequest("rate", "miss")
		return decimal.Zero, false
	}
	metrics.IncCacheRequest("rate", "hit")
	return rate, true
}

func (c *RateCache) Set(ctx context.Context, from, to string, rate decimal.Decimal, ttl time.Duration) {
	// Best effort: a failed write just means a slower lookup next time.
	_ = c.client.Set(ctx, rateKey(from, to), rate.String(), ttl)
}
