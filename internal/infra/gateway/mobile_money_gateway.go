package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
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

var _ adapter.PaymentGateway = (*MobileMoneyGateway)(nil)

// Per-transaction limits imposed by the mobile money operators.
var mobileMoneyLimits = map[string]struct{ min, max decimal.Decimal }{
	"ecocash":  {decimal.NewFromInt(1), decimal.NewFromInt(50000)},
	"onemoney": {decimal.NewFromInt(1), decimal.NewFromInt(20000)},
}

// MobileMoneyGateway covers the Zimbabwean mobile wallets (EcoCash,
// OneMoney). They charge in ZWL only and support neither refunds nor
// recurring mandates; those operations report failure instead of erroring.
type MobileMoneyGateway struct {
	name      string
	apiKey    string
	secret    string
	baseURL   string
	client    *http.Client
	minAmount decimal.Decimal
	maxAmount decimal.Decimal
}

func NewMobileMoneyGateway(name string, cfg map[string]string) (*MobileMoneyGateway, error) {
	limits, ok := mobileMoneyLimits[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mobile money operator %q", domain.ErrConfiguration, name)
	}
	apiKey := strings.TrimSpace(cfg["api_key"])
	baseURL := strings.TrimSpace(cfg["base_url"])
	if apiKey == "" || baseURL == "" {
		return nil, fmt.Errorf("%w: %s api_key and base_url are required", domain.ErrConfiguration, name)
	}
	return &MobileMoneyGateway{
		name:      name,
		apiKey:    apiKey,
		secret:    cfg["webhook_secret"],
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		minAmount: limits.min,
		maxAmount: limits.max,
	}, nil
}

func (g *MobileMoneyGateway) Name() string { return g.name }

func (g *MobileMoneyGateway) SupportedCurrencies() []string { return []string{"ZWL"} }

type mobileMoneyResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (g *MobileMoneyGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, customer adapter.CustomerData) adapter.PaymentResult {
	if currency != "ZWL" {
		return adapter.PaymentResult{Success: false, ErrorMessage: fmt.Sprintf("%s only supports ZWL", g.name)}
	}
	if customer.Phone == "" {
		return adapter.PaymentResult{Success: false, ErrorMessage: "subscriber phone number is required"}
	}
	if amount.LessThan(g.minAmount) || amount.GreaterThan(g.maxAmount) {
		return adapter.PaymentResult{
			Success: false,
			ErrorMessage: fmt.Sprintf("amount %s outside %s limits [%s, %s]",
				amount.StringFixed(2), g.name, g.minAmount.StringFixed(2), g.maxAmount.StringFixed(2)),
		}
	}

	payload := map[string]interface{}{
		"msisdn":    customer.Phone,
		"amount":    amount.StringFixed(2),
		"currency":  currency,
		"reference": customer.UserID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(raw))
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	var out mobileMoneyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: fmt.Sprintf("bad operator response: %s", string(body))}
	}
	if resp.StatusCode >= 400 || strings.ToLower(out.Status) == "failed" {
		return adapter.PaymentResult{
			Success:       false,
			TransactionID: out.TransactionID,
			ErrorMessage:  out.Message,
		}
	}
	return adapter.PaymentResult{
		Success:       true,
		TransactionID: out.TransactionID,
		Metadata:      map[string]string{"status": out.Status},
	}
}

func (g *MobileMoneyGateway) VerifyPayment(ctx context.Context, externalID string) adapter.PaymentResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/payments/"+externalID, nil)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: err.Error()}
	}
	var out mobileMoneyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return adapter.PaymentResult{Success: false, ErrorMessage: fmt.Sprintf("bad operator response: %s", string(body))}
	}
	return adapter.PaymentResult{
		Success:       strings.EqualFold(out.Status, "completed"),
		TransactionID: out.TransactionID,
		Metadata:      map[string]string{"status": out.Status},
	}
}

func (g *MobileMoneyGateway) RefundPayment(ctx context.Context, externalID string, amount *decimal.Decimal) adapter.PaymentResult {
	return adapter.PaymentResult{
		Success:      false,
		ErrorMessage: fmt.Sprintf("%s does not support refunds", g.name),
	}
}

func (g *MobileMoneyGateway) CreateSubscription(ctx context.Context, customer adapter.CustomerData, planID string) adapter.PaymentResult {
	return adapter.PaymentResult{
		Success:      false,
		ErrorMessage: fmt.Sprintf("%s does not support recurring mandates", g.name),
	}
}

func (g *MobileMoneyGateway) CancelSubscription(ctx context.Context, externalID string) adapter.PaymentResult {
	return adapter.PaymentResult{
		Success:      false,
		ErrorMessage: fmt.Sprintf("%s does not support recurring mandates", g.name),
	}
}

func (g *MobileMoneyGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.secret == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(g.secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
