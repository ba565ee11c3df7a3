// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain"
	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/adapter"
	"legacygrid-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockTxManager runs the callback without a real transaction; repositories
// below accept a nil qx.
type mockTxManager struct {
	beginErr error
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, qx repository.Tx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(ctx, nil)
}

// ---- currencies ----

type memCurrencyRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Currency
}

func newMemCurrencyRepo() *memCurrencyRepo {
	return &memCurrencyRepo{store: make(map[string]*model.Currency)}
}

func (m *memCurrencyRepo) FindByCode(ctx context.Context, _ repository.Tx, code string) (*model.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[code]
	if !ok || !c.IsActive {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCurrencyRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Currency
	for _, c := range m.store {
		if c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCurrencyRepo) Save(ctx context.Context, _ repository.Tx, c *model.Currency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.Code] = &cp
	return nil
}

func (m *memCurrencyRepo) UpdateRate(ctx context.Context, _ repository.Tx, code string, rate decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[code]
	if !ok {
		return domain.ErrNotFound
	}
	c.RateToBase = rate
	c.LastUpdated = time.Now()
	return nil
}

func (m *memCurrencyRepo) Deactivate(ctx context.Context, _ repository.Tx, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[code]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsActive = false
	return nil
}

// ---- tiers and prices ----

type memTierRepo struct {
	mu    sync.RWMutex
	store map[string]*model.SubscriptionTier // by ID
}

func newMemTierRepo() *memTierRepo {
	return &memTierRepo{store: make(map[string]*model.SubscriptionTier)}
}

func (m *memTierRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.SubscriptionTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTierRepo) FindByName(ctx context.Context, _ repository.Tx, name string) (*model.SubscriptionTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.Name == name && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTierRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.SubscriptionTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionTier
	for _, t := range m.store {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTierRepo) Save(ctx context.Context, _ repository.Tx, t *model.SubscriptionTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

type memPriceRepo struct {
	mu    sync.RWMutex
	store map[string]*model.SubscriptionPrice // by tierID+"/"+currency
}

func newMemPriceRepo() *memPriceRepo {
	return &memPriceRepo{store: make(map[string]*model.SubscriptionPrice)}
}

func (m *memPriceRepo) FindByTierAndCurrency(ctx context.Context, _ repository.Tx, tierID, currencyCode string) (*model.SubscriptionPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[tierID+"/"+currencyCode]
	if !ok || !p.IsActive {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPriceRepo) ListByTier(ctx context.Context, _ repository.Tx, tierID string) ([]*model.SubscriptionPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPrice
	for _, p := range m.store {
		if p.TierID == tierID && p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPriceRepo) Save(ctx context.Context, _ repository.Tx, p *model.SubscriptionPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.TierID+"/"+p.CurrencyCode] = &cp
	return nil
}

// ---- subscriptions ----

type memSubRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserSubscription // by userID
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{store: make(map[string]*model.UserSubscription)}
}

func (m *memSubRepo) FindByUser(ctx context.Context, _ repository.Tx, userID string) (*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) FindByExternalID(ctx context.Context, _ repository.Tx, externalID string) (*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.ExternalSubscriptionID != nil && *s.ExternalSubscriptionID == externalID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) Upsert(ctx context.Context, _ repository.Tx, s *model.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.UserID] = &cp
	return nil
}

func (m *memSubRepo) ListActiveExpired(ctx context.Context, _ repository.Tx, asOf time.Time, limit int) ([]*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserSubscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && s.ExpiresAt != nil && s.ExpiresAt.Before(asOf) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSubRepo) ListExpiringAutoRenew(ctx context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserSubscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && s.AutoRenew && s.ExpiresAt != nil && s.ExpiresAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context, _ repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.store {
		out[s.Status]++
	}
	return out, nil
}

// ---- payments ----

type memPaymentRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.Payment
	SaveFunc func(ctx context.Context, qx repository.Tx, p *model.Payment) error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByExternalID(ctx context.Context, _ repository.Tx, provider, externalID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.Provider == provider && p.ExternalPaymentID != nil && *p.ExternalPaymentID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, status model.PaymentStatus, externalID *string, errorMessage string, processedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if externalID != nil {
		p.ExternalPaymentID = externalID
	}
	p.ErrorMessage = errorMessage
	if processedAt != nil {
		p.ProcessedAt = processedAt
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (m *memPaymentRepo) LinkSubscription(ctx context.Context, _ repository.Tx, paymentID, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
		if (p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusProcessing) && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ---- providers ----

type memProviderRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PaymentProvider
}

func newMemProviderRepo() *memProviderRepo {
	return &memProviderRepo{store: make(map[string]*model.PaymentProvider)}
}

func (m *memProviderRepo) FindByName(ctx context.Context, _ repository.Tx, name string) (*model.PaymentProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[name]
	if !ok || !p.IsActive {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProviderRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.PaymentProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentProvider
	for _, p := range m.store {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProviderRepo) Save(ctx context.Context, _ repository.Tx, p *model.PaymentProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.Name] = &cp
	return nil
}

// ---- webhook events ----

type memWebhookRepo struct {
	mu    sync.Mutex
	byKey map[string]*model.WebhookEvent // provider+"/"+externalEventID
	byID  map[string]*model.WebhookEvent
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{
		byKey: make(map[string]*model.WebhookEvent),
		byID:  make(map[string]*model.WebhookEvent),
	}
}

func (m *memWebhookRepo) Insert(ctx context.Context, _ repository.Tx, ev *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ev.Provider + "/" + ev.ExternalEventID
	if _, exists := m.byKey[key]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *ev
	m.byKey[key] = &cp
	m.byID[ev.ID] = &cp
	return nil
}

func (m *memWebhookRepo) MarkProcessed(ctx context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	ev.Processed = true
	ev.ErrorMessage = ""
	ev.ProcessedAt = &now
	return nil
}

func (m *memWebhookRepo) MarkFailed(ctx context.Context, _ repository.Tx, id, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	ev.Processed = false
	ev.ErrorMessage = errorMessage
	ev.ProcessedAt = &now
	return nil
}

func (m *memWebhookRepo) FindByProviderAndEventID(ctx context.Context, _ repository.Tx, provider, externalEventID string) (*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byKey[provider+"/"+externalEventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// ---- audit log ----

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
	failErr error
}

func newMemAuditRepo() *memAuditRepo { return &memAuditRepo{} }

func (m *memAuditRepo) Append(ctx context.Context, _ repository.Tx, e *model.AuditEntry) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditRepo) count(action model.AuditAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// ---- gateway ----

type fakeGateway struct {
	name           string
	currencies     []string
	CreateFunc     func(ctx context.Context, amount decimal.Decimal, currency string, customer adapter.CustomerData) adapter.PaymentResult
	VerifyFunc     func(ctx context.Context, externalID string) adapter.PaymentResult
	RefundFunc     func(ctx context.Context, externalID string, amount *decimal.Decimal) adapter.PaymentResult
	SignatureValid bool
	createCalls    int
}

func newFakeGateway(name string, currencies ...string) *fakeGateway {
	return &fakeGateway{name: name, currencies: currencies, SignatureValid: true}
}

func (g *fakeGateway) Name() string                  { return g.name }
func (g *fakeGateway) SupportedCurrencies() []string { return g.currencies }

func (g *fakeGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, customer adapter.CustomerData) adapter.PaymentResult {
	g.createCalls++
	if g.CreateFunc != nil {
		return g.CreateFunc(ctx, amount, currency, customer)
	}
	return adapter.PaymentResult{Success: true, TransactionID: "ext_" + customer.UserID}
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, externalID string) adapter.PaymentResult {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, externalID)
	}
	return adapter.PaymentResult{Success: true, TransactionID: externalID}
}

func (g *fakeGateway) RefundPayment(ctx context.Context, externalID string, amount *decimal.Decimal) adapter.PaymentResult {
	if g.RefundFunc != nil {
		return g.RefundFunc(ctx, externalID, amount)
	}
	return adapter.PaymentResult{Success: true, TransactionID: "re_" + externalID}
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customer adapter.CustomerData, planID string) adapter.PaymentResult {
	return adapter.PaymentResult{Success: true, TransactionID: "sub_" + customer.UserID}
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, externalID string) adapter.PaymentResult {
	return adapter.PaymentResult{Success: true, TransactionID: externalID}
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	return g.SignatureValid
}

type fakeFactory struct {
	gateways map[string]adapter.PaymentGateway
	err      error
}

func (f *fakeFactory) Resolve(provider *model.PaymentProvider) (adapter.PaymentGateway, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.gateways[provider.Name]
	if !ok {
		return nil, domain.ErrConfiguration
	}
	return g, nil
}

// ---- rates ----

type fakeRateSource struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (f *fakeRateSource) FetchRates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

type fakeRateCache struct {
	mu    sync.Mutex
	store map[string]decimal.Decimal
}

func newFakeRateCache() *fakeRateCache {
	return &fakeRateCache{store: make(map[string]decimal.Decimal)}
}

func (f *fakeRateCache) Get(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.store[from+"/"+to]
	return r, ok
}

func (f *fakeRateCache) Set(ctx context.Context, from, to string, rate decimal.Decimal, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[from+"/"+to] = rate
}
