package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/usecase"
)

// Server exposes the webhook endpoint, the billing API and operational
// endpoints. All /api/v1 routes sit behind bearer-key auth; webhooks
// authenticate with provider signatures instead.
type Server struct {
	payments  *usecase.PaymentProcessor
	subs      *usecase.SubscriptionManager
	webhooks  *usecase.WebhookProcessor
	converter *usecase.CurrencyConverter

	tiers      repository.TierRepository
	prices     repository.PriceRepository
	currencies repository.CurrencyRepository
	subsRepo   repository.SubscriptionRepository
	events     repository.WebhookEventRepository

	apiKey string
	log    *zerolog.Logger
}

func NewServer(
	payments *usecase.PaymentProcessor,
	subs *usecase.SubscriptionManager,
	webhooks *usecase.WebhookProcessor,
	converter *usecase.CurrencyConverter,
	tiers repository.TierRepository,
	prices repository.PriceRepository,
	currencies repository.CurrencyRepository,
	subsRepo repository.SubscriptionRepository,
	events repository.WebhookEventRepository,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		payments:   payments,
		subs:       subs,
		webhooks:   webhooks,
		converter:  converter,
		tiers:      tiers,
		prices:     prices,
		currencies: currencies,
		subsRepo:   subsRepo,
		events:     events,
		apiKey:     apiKey,
		log:        logger,
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/{provider}", s.webhookHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/charges", s.chargeHandler)
		r.Post("/payments/{id}/refund", s.refundHandler)
		r.Post("/payments/{id}/verify", s.verifyHandler)

		r.Get("/subscriptions/{userID}", s.subscriptionGetHandler)
		r.Post("/subscriptions/{userID}", s.subscriptionEnsureHandler)
		r.Post("/subscriptions/{userID}/cancel", s.subscriptionCancelHandler)
		r.Post("/subscriptions/{userID}/upgrade", s.subscriptionUpgradeHandler)

		r.Get("/tiers", s.tiersListHandler)
		r.Get("/currencies", s.currenciesListHandler)
		r.Post("/currencies/refresh", s.currenciesRefreshHandler)
		r.Delete("/currencies/{code}", s.currencyDeactivateHandler)

		r.Get("/webhooks/{provider}/events/{eventID}", s.webhookEventGetHandler)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled, then drains.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// authMiddleware provides simple Bearer token authentication for the billing API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
