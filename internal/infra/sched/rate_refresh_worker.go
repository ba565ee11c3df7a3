package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"legacygrid-billing/internal/usecase"
)

// RateRefreshWorker keeps stored exchange rates warm. Failures are logged
// and retried next tick; the converter has a fallback chain in the meantime.
type RateRefreshWorker struct {
	interval  time.Duration
	converter *usecase.CurrencyConverter
	log       *zerolog.Logger
}

func NewRateRefreshWorker(interval time.Duration, converter *usecase.CurrencyConverter, logger *zerolog.Logger) *RateRefreshWorker {
	l := logger.With().Str("component", "RateRefreshWorker").Logger()
	return &RateRefreshWorker{
		interval:  interval,
		converter: converter,
		log:       &l,
	}
}

func (w *RateRefreshWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting rate refresh worker")
	// Refresh once on startup, then on every tick
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping rate refresh worker")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *RateRefreshWorker) refresh(ctx context.Context) {
	n, err := w.converter.RefreshRates(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("rate refresh failed")
		return
	}
	w.log.Info().Int("updated", n).Msg("exchange rates refreshed")
}
