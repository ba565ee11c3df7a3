package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/ports/adapter"
)

func newTestMobileGateway(t *testing.T, name, baseURL string) *MobileMoneyGateway {
	t.Helper()
	g, err := NewMobileMoneyGateway(name, map[string]string{
		"api_key":        "key",
		"base_url":       baseURL,
		"webhook_secret": "topsecret",
	})
	if err != nil {
		t.Fatalf("NewMobileMoneyGateway: %v", err)
	}
	return g
}

func TestMobileMoneyConfigValidation(t *testing.T) {
	if _, err := NewMobileMoneyGateway("mpesa", map[string]string{"api_key": "k", "base_url": "u"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("unknown operator err = %v, want ErrConfiguration", err)
	}
	if _, err := NewMobileMoneyGateway("ecocash", map[string]string{"base_url": "u"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("missing api_key err = %v, want ErrConfiguration", err)
	}
}

func TestMobileMoneyRejectsNonZWL(t *testing.T) {
	g := newTestMobileGateway(t, "ecocash", "http://unused.invalid")

	res := g.CreatePayment(context.Background(), decimal.NewFromInt(10), "USD",
		adapter.CustomerData{UserID: "user-1", Phone: "+263771234567"})
	if res.Success {
		t.Fatal("USD charge succeeded on a ZWL-only operator")
	}
	if !strings.Contains(res.ErrorMessage, "ZWL") {
		t.Fatalf("message = %q", res.ErrorMessage)
	}
}

func TestMobileMoneyRequiresPhone(t *testing.T) {
	g := newTestMobileGateway(t, "ecocash", "http://unused.invalid")

	res := g.CreatePayment(context.Background(), decimal.NewFromInt(10), "ZWL",
		adapter.CustomerData{UserID: "user-1"})
	if res.Success || !strings.Contains(res.ErrorMessage, "phone") {
		t.Fatalf("result = %+v", res)
	}
}

func TestMobileMoneyEnforcesLimits(t *testing.T) {
	g := newTestMobileGateway(t, "onemoney", "http://unused.invalid")
	customer := adapter.CustomerData{UserID: "user-1", Phone: "+263771234567"}

	for _, amount := range []string{"0.50", "20001"} {
		res := g.CreatePayment(context.Background(), decimal.RequireFromString(amount), "ZWL", customer)
		if res.Success {
			t.Fatalf("amount %s accepted outside onemoney limits", amount)
		}
	}
}

func TestMobileMoneyCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"transaction_id":"mm_1","status":"completed"}`))
	}))
	defer srv.Close()

	g := newTestMobileGateway(t, "ecocash", srv.URL)
	res := g.CreatePayment(context.Background(), decimal.NewFromInt(100), "ZWL",
		adapter.CustomerData{UserID: "user-1", Phone: "+263771234567"})
	if !res.Success || res.TransactionID != "mm_1" {
		t.Fatalf("result = %+v", res)
	}
}

func TestMobileMoneyCreatePaymentOperatorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"transaction_id":"mm_2","status":"failed","message":"insufficient wallet balance"}`))
	}))
	defer srv.Close()

	g := newTestMobileGateway(t, "ecocash", srv.URL)
	res := g.CreatePayment(context.Background(), decimal.NewFromInt(100), "ZWL",
		adapter.CustomerData{UserID: "user-1", Phone: "+263771234567"})
	if res.Success {
		t.Fatal("operator failure reported as success")
	}
	if res.ErrorMessage != "insufficient wallet balance" {
		t.Fatalf("message = %q", res.ErrorMessage)
	}
}

func TestMobileMoneyUnsupportedOperations(t *testing.T) {
	g := newTestMobileGateway(t, "ecocash", "http://unused.invalid")
	ctx := context.Background()

	if res := g.RefundPayment(ctx, "mm_1", nil); res.Success {
		t.Fatal("refund reported success")
	}
	if res := g.CreateSubscription(ctx, adapter.CustomerData{UserID: "u"}, "plan"); res.Success {
		t.Fatal("recurring mandate reported success")
	}
	if res := g.CancelSubscription(ctx, "mm_1"); res.Success {
		t.Fatal("mandate cancel reported success")
	}
}

func TestMobileMoneyWebhookSignature(t *testing.T) {
	g := newTestMobileGateway(t, "ecocash", "http://unused.invalid")
	payload := []byte(`{"id":"evt_1"}`)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(payload)
	good := hex.EncodeToString(mac.Sum(nil))

	if !g.VerifyWebhookSignature(payload, good) {
		t.Fatal("valid signature rejected")
	}
	if !g.VerifyWebhookSignature(payload, strings.ToUpper(good)) {
		t.Fatal("case-insensitive hex signature rejected")
	}
	if g.VerifyWebhookSignature(payload, "deadbeef") {
		t.Fatal("bogus signature accepted")
	}

	noSecret, err := NewMobileMoneyGateway("ecocash", map[string]string{"api_key": "k", "base_url": "http://u"})
	if err != nil {
		t.Fatalf("NewMobileMoneyGateway: %v", err)
	}
	if noSecret.VerifyWebhookSignature(payload, good) {
		t.Fatal("signature accepted without a configured secret")
	}
}
