package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/config"
	"legacygrid-billing/internal/domain/model"
	pg "legacygrid-billing/internal/infra/db/postgres"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func main() {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	currencyRepo := pg.NewCurrencyRepo(pool)
	tierRepo := pg.NewTierRepo(pool)
	priceRepo := pg.NewPriceRepo(pool)
	providerRepo := pg.NewProviderRepo(pool)

	// ---- Currencies (rate_to_base = USD per 1 unit) ----
	currencies := []struct {
		Code, Name, Symbol string
		Rate               decimal.Decimal
	}{
		{"USD", "US Dollar", "$", dec("1")},
		{"ZWL", "Zimbabwe Dollar", "Z$", dec("0.04")},
		{"ZAR", "South African Rand", "R", dec("0.054")},
		{"NGN", "Nigerian Naira", "₦", dec("0.00065")},
		{"KES", "Kenyan Shilling", "KSh", dec("0.0077")},
	}
	for _, c := range currencies {
		cur, err := model.NewCurrency(c.Code, c.Name, c.Symbol, c.Rate)
		if err != nil {
			log.Fatalf("currency %s: %v", c.Code, err)
		}
		if err := currencyRepo.Save(ctx, nil, cur); err != nil {
			log.Fatalf("save currency %s: %v", c.Code, err)
		}
		fmt.Printf("seeded currency: %s (%s)\n", c.Code, c.Name)
	}

	// ---- Tiers ----
	tiers := []struct {
		Name, Description string
		Features          []string
		AIAccess          bool
		SortOrder         int
	}{
		{"free", "Free tier with limited access", []string{"basic_reports"}, false, 0},
		{"basic", "Entry paid tier", []string{"basic_reports", "email_support"}, false, 1},
		{"standard", "Standard tier for growing teams", []string{"basic_reports", "email_support", "api_access"}, true, 2},
		{"premium", "Everything included", []string{"basic_reports", "email_support", "api_access", "priority_support", "exports"}, true, 3},
	}
	tierIDs := make(map[string]string, len(tiers))
	for _, t := range tiers {
		existing, err := tierRepo.FindByName(ctx, nil, t.Name)
		if err == nil {
			tierIDs[t.Name] = existing.ID
			fmt.Printf("tier %q already present\n", t.Name)
			continue
		}
		tier, err := model.NewSubscriptionTier(uuid.NewString(), t.Name, t.Description, t.Features, t.AIAccess, t.SortOrder)
		if err != nil {
			log.Fatalf("tier %q: %v", t.Name, err)
		}
		if err := tierRepo.Save(ctx, nil, tier); err != nil {
			log.Fatalf("save tier %q: %v", t.Name, err)
		}
		tierIDs[t.Name] = tier.ID
		fmt.Printf("seeded tier: %s\n", t.Name)
	}

	// ---- Prices (monthly / annual per currency) ----
	prices := []struct {
		Tier, Currency string
		Monthly        decimal.Decimal
		Annual         *decimal.Decimal
	}{
		{"free", "USD", dec("0.00"), nil},
		{"basic", "USD", dec("4.99"), decPtr("49.99")},
		{"basic", "ZWL", dec("125.00"), decPtr("1250.00")},
		{"basic", "ZAR", dec("89.00"), decPtr("890.00")},
		{"standard", "USD", dec("9.99"), decPtr("99.99")},
		{"standard", "ZWL", dec("250.00"), decPtr("2500.00")},
		{"standard", "ZAR", dec("179.00"), decPtr("1790.00")},
		{"standard", "NGN", dec("15000.00"), nil},
		{"premium", "USD", dec("19.99"), decPtr("199.99")},
		{"premium", "ZWL", dec("500.00"), decPtr("5000.00")},
		{"premium", "ZAR", dec("359.00"), decPtr("3590.00")},
		{"premium", "KES", dec("2600.00"), nil},
	}
	for _, p := range prices {
		tierID, ok := tierIDs[p.Tier]
		if !ok {
			log.Fatalf("price references unknown tier %q", p.Tier)
		}
		row := &model.SubscriptionPrice{
			ID:           uuid.NewString(),
			TierID:       tierID,
			CurrencyCode: p.Currency,
			MonthlyPrice: p.Monthly,
			AnnualPrice:  p.Annual,
			IsActive:     true,
		}
		if err := priceRepo.Save(ctx, nil, row); err != nil {
			log.Fatalf("save price %s/%s: %v", p.Tier, p.Currency, err)
		}
		fmt.Printf("seeded price: %s in %s (monthly %s)\n", p.Tier, p.Currency, p.Monthly.StringFixed(2))
	}

	// ---- Providers ----
	providers := []struct {
		Name, DisplayName string
		Webhooks          bool
		Currencies        []string
		Config            map[string]string
	}{
		{"stripe", "Stripe", true, []string{"USD", "EUR", "GBP", "ZAR"},
			map[string]string{"api_key": "sk_test_replace_me", "webhook_secret": "whsec_replace_me"}},
		{"paypal", "PayPal", true, []string{"USD", "EUR", "GBP"},
			map[string]string{"client_id": "replace_me", "client_secret": "replace_me", "sandbox": "true", "webhook_secret": "replace_me"}},
		{"ecocash", "EcoCash", true, []string{"ZWL"},
			map[string]string{"api_key": "replace_me", "base_url": "https://api.ecocash.co.zw/v2", "webhook_secret": "replace_me"}},
		{"onemoney", "OneMoney", false, []string{"ZWL"},
			map[string]string{"api_key": "replace_me", "base_url": "https://api.onemoney.co.zw/v1", "webhook_secret": "replace_me"}},
	}
	for _, p := range providers {
		rec, err := model.NewPaymentProvider(p.Name, p.DisplayName, p.Webhooks, p.Currencies, p.Config)
		if err != nil {
			log.Fatalf("provider %q: %v", p.Name, err)
		}
		if err := providerRepo.Save(ctx, nil, rec); err != nil {
			log.Fatalf("save provider %q: %v", p.Name, err)
		}
		fmt.Printf("seeded provider: %s\n", p.Name)
	}

	fmt.Println("seeding complete")
}
