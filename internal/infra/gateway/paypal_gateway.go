package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PayPalGateway)(nil)

// PayPalGateway implements the gateway port with direct HTTP calls against
// the PayPal Orders v2 API.
type PayPalGateway struct {
	clientID      string
	secret        string
	webhookSecret string
	baseURL       string
	client        *http.Client
	currencies    []string
}

func NewPayPalGateway(cfg map[string]string) (*PayPalGateway, error) {
	clientID := strings.TrimSpace(cfg["client_id"])
	secret := strings.TrimSpace(cfg["client_secret"])
	if clientID == "" || secret == "" {
		return nil, fmt.Errorf("%w: paypal client_id and client_secret are required", domain.ErrConfiguration)
	}

	baseURL := "https://api-m.paypal.com"
	if cfg["sandbox"] == "true" {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	return &PayPalGateway{
		clientID:      clientID,
		secret:        secret,
		webhookSecret: cfg["webhook_secret"],
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		currencies:    []string{"USD", "EUR", "GBP"},
	}, nil
}

func (g *PayPalGateway) Name() string { return "paypal" }

func (g *PayPalGateway) SupportedCurrencies() []string { return g.currencies }

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *PayPalGateway) doJSON(ctx context.Context, method, path string, payload interface{}) (*paypalOrderResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal paypal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build paypal request: %w", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(g.clientID + ":" + g.secret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read paypal response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paypal error: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var out paypalOrderResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("unmarshal paypal response: %w, body: %s", err, string(raw))
		}
	}
	return &out, nil
}

func (g *PayPalGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, customer adapter.CustomerData) adapter.PaymentResult {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": currency,
					"value":         amount.StringFixed(2),
				},
				"custom_id": customer.UserID,
			},
		},
	}
	order, err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	if order.Status != "COMPLETED" && order.Status != "CREATED" && order.Status != "APPROVED" {
		return adapter.PaymentResult{
			Success:       false,
			TransactionID: order.ID,
			ErrorMessage:  fmt.Sprintf("paypal order status %s", order.Status),
		}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: order.ID,
		Metadata:      map[string]string{"status": order.Status},
	}
}

func (g *PayPalGateway) VerifyPayment(ctx context.Context, externalID string) adapter.PaymentResult {
	order, err := g.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+externalID, nil)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       order.Status == "COMPLETED",
		TransactionID: order.ID,
		Metadata:      map[string]string{"status": order.Status},
	}
}

func (g *PayPalGateway) RefundPayment(ctx context.Context, externalID string, amount *decimal.Decimal) adapter.PaymentResult {
	var payload interface{}
	if amount != nil {
		payload = map[string]interface{}{
			"amount": map[string]string{"value": amount.StringFixed(2)},
		}
	}
	ref, err := g.doJSON(ctx, http.MethodPost, "/v2/payments/captures/"+externalID+"/refund", payload)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: ref.ID,
		Metadata:      map[string]string{"status": ref.Status},
	}
}

func (g *PayPalGateway) CreateSubscription(ctx context.Context, customer adapter.CustomerData, planID string) adapter.PaymentResult {
	payload := map[string]interface{}{
		"plan_id":   planID,
		"custom_id": customer.UserID,
		"subscriber": map[string]interface{}{
			"email_address": customer.Email,
		},
	}
	sub, err := g.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions", payload)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: sub.ID,
		Metadata:      map[string]string{"status": sub.Status},
	}
}

func (g *PayPalGateway) CancelSubscription(ctx context.Context, externalID string) adapter.PaymentResult {
	_, err := g.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions/"+externalID+"/cancel", map[string]string{"reason": "user requested"})
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	return adapter.PaymentResult{Success: true, TransactionID: externalID}
}

func (g *PayPalGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.webhookSecret == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(g.webhookSecret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
