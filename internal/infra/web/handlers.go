package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrPricingUnavailable),
		errors.Is(err, domain.ErrSubscription),
		errors.Is(err, domain.ErrWebhookSignature):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrStatusTransition),
		errors.Is(err, domain.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// webhookHandler ingests provider callbacks. Duplicates and dispatch
// failures both return 200 so the provider stops retrying; only signature,
// parse and unknown-provider problems are surfaced.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Signature")
	}

	if err := s.webhooks.Process(r.Context(), providerName, body, signature); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

type chargeRequest struct {
	UserID          string `json:"user_id"`
	Tier            string `json:"tier"`
	BillingCycle    string `json:"billing_cycle"`
	Currency        string `json:"currency"`
	Provider        string `json:"provider"`
	DisplayCurrency string `json:"display_currency"`
	Customer        struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

type chargeResponse struct {
	Payment   *model.Payment           `json:"payment"`
	Localized *usecase.LocalizedAmount `json:"localized,omitempty"`
}

func (s *Server) chargeHandler(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cycle := model.BillingCycle(req.BillingCycle)
	if cycle == "" {
		cycle = model.BillingCycleMonthly
	}

	payment, err := s.payments.ChargeForTier(r.Context(), usecase.ChargeInput{
		UserID:       req.UserID,
		TierName:     req.Tier,
		Cycle:        cycle,
		CurrencyCode: req.Currency,
		Provider:     req.Provider,
		Customer: adapter.CustomerData{
			UserID: req.UserID,
			Email:  req.Customer.Email,
			Name:   req.Customer.Name,
			Phone:  req.Customer.Phone,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := chargeResponse{Payment: payment}
	if req.DisplayCurrency != "" && req.DisplayCurrency != payment.CurrencyCode {
		localized := s.converter.Localize(r.Context(), payment.Amount, payment.CurrencyCode, req.DisplayCurrency)
		resp.Localized = &localized
	}

	// A declined charge still produces a payment record; report it as 200
	// rather than 201 so clients can tell the outcomes apart.
	status := http.StatusCreated
	if payment.Status == model.PaymentStatusFailed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type refundRequest struct {
	Amount *string `json:"amount,omitempty"`
	Actor  *string `json:"actor,omitempty"`
}

func (s *Server) refundHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		parsed, err := decimal.NewFromString(*req.Amount)
		if err != nil || !parsed.IsPositive() {
			http.Error(w, "Invalid refund amount", http.StatusBadRequest)
			return
		}
		amount = &parsed
	}

	payment, err := s.payments.Refund(r.Context(), id, amount, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := s.payments.VerifyPending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) subscriptionGetHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subsRepo.FindByUser(r.Context(), nil, chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// subscriptionEnsureHandler returns the user's subscription, provisioning a
// free-tier one when the user has none yet.
func (s *Server) subscriptionEnsureHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subs.GetOrCreateFree(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type cancelRequest struct {
	Reason string  `json:"reason"`
	Actor  *string `json:"actor,omitempty"`
}

func (s *Server) subscriptionCancelHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.subs.Cancel(r.Context(), nil, userID, req.Reason, req.Actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type upgradeRequest struct {
	Tier  string  `json:"tier"`
	Actor *string `json:"actor,omitempty"`
}

func (s *Server) subscriptionUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tier == "" {
		http.Error(w, "Tier is required", http.StatusBadRequest)
		return
	}

	sub, err := s.subs.Upgrade(r.Context(), nil, userID, req.Tier, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type tierWithPrices struct {
	Tier   *model.SubscriptionTier    `json:"tier"`
	Prices []*model.SubscriptionPrice `json:"prices"`
}

func (s *Server) tiersListHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tiers, err := s.tiers.ListActive(ctx, nil)
	if err != nil {
		http.Error(w, "Failed to list tiers", http.StatusInternalServerError)
		return
	}

	out := make([]tierWithPrices, 0, len(tiers))
	for _, t := range tiers {
		prices, err := s.prices.ListByTier(ctx, nil, t.ID)
		if err != nil {
			http.Error(w, "Failed to list prices", http.StatusInternalServerError)
			return
		}
		out = append(out, tierWithPrices{Tier: t, Prices: prices})
	}

	writeJSON(w, http.StatusOK, struct {
		Data []tierWithPrices `json:"data"`
	}{Data: out})
}

func (s *Server) currenciesRefreshHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := s.converter.RefreshRates(r.Context())
	if err != nil {
		http.Error(w, "Rate refresh failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) currenciesListHandler(w http.ResponseWriter, r *http.Request) {
	currencies, err := s.currencies.ListActive(r.Context(), nil)
	if err != nil {
		http.Error(w, "Failed to list currencies", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.Currency `json:"data"`
	}{Data: currencies})
}

func (s *Server) currencyDeactivateHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.currencies.Deactivate(r.Context(), nil, code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// webhookEventGetHandler looks up a recorded webhook delivery, mainly for
// investigating events that were stored but failed dispatch.
func (s *Server) webhookEventGetHandler(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.FindByProviderAndEventID(r.Context(), nil,
		chi.URLParam(r, "provider"), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
