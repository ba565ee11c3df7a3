package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"legacygrid-billing/internal/infra/metrics"
	"legacygrid-billing/internal/usecase"
)

// ExpiryWorker periodically sweeps active subscriptions past their expiry
// and refreshes the per-status subscription gauge.
type ExpiryWorker struct {
	interval time.Duration
	subs     *usecase.SubscriptionManager
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, subs *usecase.SubscriptionManager, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		subs:     subs,
		log:      &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subs.SweepExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("expired subscriptions finished")
			}
			counts, err := w.subs.StatusCounts(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("counting subscriptions failed")
				continue
			}
			metrics.SetSubscriptionsTotal(counts)
		}
	}
}
