// File: internal/usecase/currency_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/infra/metrics"
)

// minorUnitPlaces is the rounding precision for all currencies in this
// deployment. Rounding is half-up (away from zero); anything float-based
// introduces off-by-one-cent nondeterminism that breaks reconciliation.
const minorUnitPlaces = 2

// fallbackRates are the documented static rates for the well-known pairs the
// deployment cares about. Used only when both the stored rates and the
// external API are unavailable, so charges degrade instead of blocking.
var fallbackRates = map[string]decimal.Decimal{
	"USD/ZWL": decimal.RequireFromString("25.0"),
	"ZWL/USD": decimal.RequireFromString("0.04"),
}

// LocalizedAmount carries an amount in both its original currency and the
// user's preferred display currency.
type LocalizedAmount struct {
	OriginalAmount   decimal.Decimal  `json:"original_amount"`
	OriginalCurrency string           `json:"original_currency"`
	DisplayAmount    decimal.Decimal  `json:"display_amount"`
	DisplayCurrency  string           `json:"display_currency"`
	ConversionRate   *decimal.Decimal `json:"conversion_rate,omitempty"`
}

// CurrencyConverter resolves and caches exchange rates and converts amounts.
// Resolution order: cache, stored rate-to-base composition, external API,
// static fallback table.
type CurrencyConverter struct {
	currencies repository.CurrencyRepository
	cache      adapter.RateCache
	source     adapter.RateSource
	base       string
	cacheTTL   time.Duration
	log        *zerolog.Logger
}

func NewCurrencyConverter(currencies repository.CurrencyRepository, cache adapter.RateCache, source adapter.RateSource, baseCurrency string, cacheTTL time.Duration, logger *zerolog.Logger) *CurrencyConverter {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	l := logger.With().Str("component", "CurrencyConverter").Logger()
	return &CurrencyConverter{
		currencies: currencies,
		cache:      cache,
		source:     source,
		base:       baseCurrency,
		cacheTTL:   cacheTTL,
		log:        &l,
	}
}

// Rate returns the multiplier such that amount(from) * rate = amount(to).
// The degraded flag is true when the rate came from the static fallback
// table; callers should treat it as a warning, not a failure.
func (c *CurrencyConverter) Rate(ctx context.Context, from, to string) (rate decimal.Decimal, degraded bool, err error) {
	if from == to {
		return decimal.NewFromInt(1), false, nil
	}

	if c.cache != nil {
		if r, ok := c.cache.Get(ctx, from, to); ok {
			metrics.IncRateLookup("cache")
			return r, false, nil
		}
	}

	if r, err := c.storedRate(ctx, from, to); err == nil {
		metrics.IncRateLookup("store")
		c.cacheSet(ctx, from, to, r)
		return r, false, nil
	}

	if r, err := c.apiRate(ctx, from, to); err == nil {
		metrics.IncRateLookup("api")
		c.cacheSet(ctx, from, to, r)
		return r, false, nil
	}

	if r, ok := fallbackRates[from+"/"+to]; ok {
		metrics.IncRateLookup("fallback")
		c.log.Warn().Str("from", from).Str("to", to).Str("rate", r.String()).
			Msg("degraded conversion: using static fallback rate")
		return r, true, nil
	}

	return decimal.Zero, false, fmt.Errorf("rate %s->%s: %w", from, to, domain.ErrConversionUnavailable)
}

// Convert converts amount from one currency to another, rounding to the
// target currency's minor unit with round-half-up.
func (c *CurrencyConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool, error) {
	if from == to {
		return amount, false, nil
	}
	rate, degraded, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, false, err
	}
	// decimal.Round rounds half away from zero, which is half-up for the
	// positive amounts billing deals in.
	return amount.Mul(rate).Round(minorUnitPlaces), degraded, nil
}

// Localize returns the amount in both its original currency and the user's
// preferred currency. Conversion failure keeps the original display values.
func (c *CurrencyConverter) Localize(ctx context.Context, amount decimal.Decimal, currency, preferred string) LocalizedAmount {
	out := LocalizedAmount{
		OriginalAmount:   amount,
		OriginalCurrency: currency,
		DisplayAmount:    amount,
		DisplayCurrency:  currency,
	}
	if preferred == "" || preferred == currency {
		return out
	}
	converted, _, err := c.Convert(ctx, amount, currency, preferred)
	if err != nil {
		return out
	}
	rate, _, err := c.Rate(ctx, currency, preferred)
	if err != nil {
		return out
	}
	out.DisplayAmount = converted
	out.DisplayCurrency = preferred
	out.ConversionRate = &rate
	return out
}

// RefreshRates queries the external provider for base->currency rates for
// every active non-base currency and stores the inverted rate-to-base.
// Fail-soft per currency: one failure never aborts the batch.
func (c *CurrencyConverter) RefreshRates(ctx context.Context) (int, error) {
	active, err := c.currencies.ListActive(ctx, nil)
	if err != nil {
		return 0, err
	}
	symbols := make([]string, 0, len(active))
	for _, cur := range active {
		if cur.Code != c.base {
			symbols = append(symbols, cur.Code)
		}
	}
	if len(symbols) == 0 {
		return 0, nil
	}

	fetched, err := c.source.FetchRates(ctx, c.base, symbols)
	if err != nil {
		return 0, fmt.Errorf("fetch rates: %w", err)
	}

	updated := 0
	for _, sym := range symbols {
		rate, ok := fetched[sym]
		if !ok || !rate.IsPositive() {
			c.log.Error().Str("currency", sym).Msg("rate refresh: no usable rate returned")
			continue
		}
		// Provider returns base->currency; stored value is currency->base.
		toBase := decimal.NewFromInt(1).DivRound(rate, 8)
		if err := c.currencies.UpdateRate(ctx, nil, sym, toBase); err != nil {
			c.log.Error().Err(err).Str("currency", sym).Msg("rate refresh: update failed")
			continue
		}
		c.cacheSet(ctx, c.base, sym, rate)
		c.cacheSet(ctx, sym, c.base, toBase)
		updated++
	}
	c.log.Info().Int("updated", updated).Int("requested", len(symbols)).Msg("exchange rate refresh completed")
	return updated, nil
}

// storedRate composes a rate from the persisted rate-to-base values.
func (c *CurrencyConverter) storedRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == c.base {
		toCur, err := c.currencies.FindByCode(ctx, nil, to)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(1).DivRound(toCur.RateToBase, 8), nil
	}
	fromCur, err := c.currencies.FindByCode(ctx, nil, from)
	if err != nil {
		return decimal.Zero, err
	}
	if to == c.base {
		return fromCur.RateToBase, nil
	}
	toCur, err := c.currencies.FindByCode(ctx, nil, to)
	if err != nil {
		return decimal.Zero, err
	}
	return fromCur.RateToBase.DivRound(toCur.RateToBase, 8), nil
}

func (c *CurrencyConverter) apiRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if c.source == nil {
		return decimal.Zero, errors.New("no rate source configured")
	}
	rates, err := c.source.FetchRates(ctx, from, []string{to})
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := rates[to]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate %s->%s missing from provider response", from, to)
	}
	return rate, nil
}

func (c *CurrencyConverter) cacheSet(ctx context.Context, from, to string, rate decimal.Decimal) {
	if c.cache != nil {
		c.cache.Set(ctx, from, to, rate, c.cacheTTL)
	}
}
