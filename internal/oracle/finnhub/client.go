// Package finnhub implements the price oracle against a finnhub-style quote
// API (https://finnhub.io/docs/api/quote). The oracle is deliberately thin:
// no caching and no retries live here; that policy belongs to the order
// processor.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/domain"
)

// Client is the REST client for the quote service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new quote client.
//
// baseURL is the API root, e.g. "https://finnhub.io/api/v1".
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// quoteResponse mirrors the upstream quote payload. The current price is
// decoded as json.Number so the value can be converted to cents exactly,
// without a float64 round trip.
type quoteResponse struct {
	Current json.Number `json:"c"`
}

// Quote returns the current market price for a symbol. A current price of
// exactly 0 is the upstream's "symbol unknown" sentinel and is reported as
// domain.ErrUnknownSymbol, never as a valid quote. Transport and decode
// failures come back as plain wrapped errors for the caller to classify.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", c.apiKey)

	reqURL := c.baseURL + "/quote?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: read quote %s: %w", symbol, err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: decode quote %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(qr.Current.String())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: parse quote price %q for %s: %w", qr.Current, symbol, err)
	}

	if price.IsZero() {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: %w", symbol, domain.ErrUnknownSymbol)
	}
	if price.IsNegative() {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: negative price %s", symbol, price)
	}

	unitPrice, err := domain.CentsFromDecimal(price.Round(2))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: %w", symbol, err)
	}

	return domain.Quote{
		Symbol:    symbol,
		UnitPrice: unitPrice,
		At:        time.Now().UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.Quoter = (*Client)(nil)
