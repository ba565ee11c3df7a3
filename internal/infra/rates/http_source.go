package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"legacygrid-billing/internal/domain/ports/adapter"
)

var _ adapter.RateSource = (*HTTPSource)(nil)

// HTTPSource fetches exchange rates from a fixer-style JSON API:
// GET {base_url}?base=USD&symbols=ZWL,ZAR -> {"rates":{"ZWL":"25.0",...}}.
// Numbers are decoded as json.Number so precision survives the trip.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

func (s *HTTPSource) FetchRates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("base", base)
	q.Set("symbols", strings.Join(symbols, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rates response: %w", err)
	}

	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rates response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(parsed.Rates))
	for code, num := range parsed.Rates {
		rate, err := decimal.NewFromString(num.String())
		if err != nil || rate.Sign() <= 0 {
			continue
		}
		out[code] = rate
	}
	return out, nil
}
