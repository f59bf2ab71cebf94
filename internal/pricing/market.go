package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/storefront-sync/internal/errs"
)

// MarketPrice is a raw price in the source's currency.
type MarketPrice struct {
	Amount   decimal.Decimal
	Currency string
}

// MarketSource looks up the market price of one item by name.
type MarketSource interface {
	Lookup(ctx context.Context, name string) (MarketPrice, error)
}

type marketItemResponse struct {
	MarketHashName string `json:"market_hash_name"`
	Currency       string `json:"currency"`
	Prices         struct {
		Safe   json.Number `json:"safe"`
		Median json.Number `json:"median"`
		Latest json.Number `json:"latest"`
	} `json:"prices"`
}

// MarketClient queries the market item endpoint.
type MarketClient struct {
	baseURL string
	apiKey  string
	appID   int
	timeout time.Duration
	http    *http.Client
}

// NewMarketClient constructs a market client. hc may be nil.
func NewMarketClient(baseURL, apiKey string, appID int, timeout time.Duration, hc *http.Client) *MarketClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &MarketClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, appID: appID, timeout: timeout, http: hc}
}

// Lookup returns the first positive of safe, median and latest prices.
// A 404 or an item without any positive price yields errs.ErrNoMarketData.
func (m *MarketClient) Lookup(ctx context.Context, name string) (MarketPrice, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/market/item/%d/%s", m.baseURL, m.appID, url.PathEscape(strings.TrimSpace(name)))
	if m.apiKey != "" {
		u += "?api_key=" + url.QueryEscape(m.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return MarketPrice{}, errs.E(errs.KindConfiguration, 0, "BAD_URL", "", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return MarketPrice{}, errs.E(errs.KindTimeout, 0, "TIMEOUT", "", err)
		}
		return MarketPrice{}, errs.E(errs.KindServer, 0, "TRANSPORT", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return MarketPrice{}, errs.ErrNoMarketData
	case resp.StatusCode == http.StatusTooManyRequests:
		return MarketPrice{}, errs.E(errs.KindRateLimit, resp.StatusCode, "RATE_LIMITED", "", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return MarketPrice{}, errs.E(errs.KindConfiguration, resp.StatusCode, "BAD_API_KEY", "", nil)
	case resp.StatusCode >= 500:
		return MarketPrice{}, errs.E(errs.KindServer, resp.StatusCode, "SERVER_ERROR", "", nil)
	case resp.StatusCode != http.StatusOK:
		return MarketPrice{}, errs.E(errs.KindBadRequest, resp.StatusCode, "BAD_REQUEST", "", nil)
	}

	var r marketItemResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return MarketPrice{}, errs.E(errs.KindServer, 0, "MALFORMED_RESPONSE", "", err)
	}
	for _, n := range []json.Number{r.Prices.Safe, r.Prices.Median, r.Prices.Latest} {
		if n == "" {
			continue
		}
		d, err := decimal.NewFromString(n.String())
		if err == nil && d.IsPositive() {
			cur := strings.ToUpper(strings.TrimSpace(r.Currency))
			if cur == "" {
				cur = BaseCurrency
			}
			return MarketPrice{Amount: d, Currency: cur}, nil
		}
	}
	return MarketPrice{}, errs.ErrNoMarketData
}
