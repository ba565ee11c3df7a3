package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/usecase"
)

// RenewalWorker charges auto-renew subscriptions approaching expiry. One
// attempt per tick per subscription; a declined charge is left to the next
// tick and ultimately to the expiry sweep.
type RenewalWorker struct {
	interval time.Duration
	window   time.Duration
	subsRepo repository.SubscriptionRepository
	payments *usecase.PaymentProcessor
	log      *zerolog.Logger
}

func NewRenewalWorker(interval, window time.Duration, subsRepo repository.SubscriptionRepository, payments *usecase.PaymentProcessor, logger *zerolog.Logger) *RenewalWorker {
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		interval: interval,
		window:   window,
		subsRepo: subsRepo,
		payments: payments,
		log:      &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RenewalWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(w.window)
	due, err := w.subsRepo.ListExpiringAutoRenew(ctx, nil, cutoff, 200)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.log.Error().Err(err).Msg("listing renewals failed")
		}
		return
	}

	renewed, failed := 0, 0
	for _, sub := range due {
		payment, err := w.payments.RenewSubscription(ctx, sub, adapter.CustomerData{UserID: sub.UserID})
		switch {
		case err != nil:
			failed++
			w.log.Error().Err(err).Str("user_id", sub.UserID).Msg("renewal error")
		case payment.Status == model.PaymentStatusCompleted:
			renewed++
		default:
			failed++
			w.log.Warn().Str("user_id", sub.UserID).Str("reason", payment.ErrorMessage).Msg("renewal charge declined")
		}
	}
	if renewed > 0 || failed > 0 {
		w.log.Info().Int("renewed", renewed).Int("failed", failed).Msg("renewal pass finished")
	}
}
