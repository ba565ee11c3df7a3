package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
)

// paymentVerifier is the slice of PaymentProcessor the reconciler needs.
type paymentVerifier interface {
	VerifyPending(ctx context.Context, paymentID string) (*model.Payment, error)
}

// ReconcileWorker re-checks stale pending payments against their gateway.
// It covers the cases where a webhook was lost or the process crashed
// between charge and confirmation.
type ReconcileWorker struct {
	interval   time.Duration
	staleAfter time.Duration
	payments   repository.PaymentRepository
	verifier   paymentVerifier
	log        *zerolog.Logger
}

func NewReconcileWorker(interval, staleAfter time.Duration, payments repository.PaymentRepository, verifier paymentVerifier, logger *zerolog.Logger) *ReconcileWorker {
	l := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{
		interval:   interval,
		staleAfter: staleAfter,
		payments:   payments,
		verifier:   verifier,
		log:        &l,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting reconcile worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.log.Error().Err(err).Msg("listing stale payments failed")
		}
		return
	}

	resolved, open := 0, 0
	for _, p := range stale {
		got, err := w.verifier.VerifyPending(ctx, p.ID)
		switch {
		case err != nil:
			w.log.Error().Err(err).Str("payment_id", p.ID).Msg("verify error")
		case got.Status == model.PaymentStatusPending || got.Status == model.PaymentStatusProcessing:
			open++
		default:
			resolved++
		}
	}
	if resolved > 0 || open > 0 {
		w.log.Info().Int("resolved", resolved).Int("still_open", open).Msg("reconcile pass finished")
	}
}
