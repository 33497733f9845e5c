/*
quotes.go - Best-effort market quotes through a provider cascade

PURPOSE:
  Variable-income assets are priced from whichever external service answers
  first. Providers form a polymorphic list tried in priority order; each
  returns a price or signals unavailability, and the cascade moves on.
  Which providers to configure, and in what order, is the caller's choice.
*/
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrQuoteUnavailable signals that a provider (or the whole cascade) has no
// price for the ticker. Not an outage: the asset is simply skipped this run.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// QuoteProvider returns a current price for a ticker or ErrQuoteUnavailable.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// =============================================================================
// CASCADE - Providers tried in priority order
// =============================================================================

type Cascade struct {
	providers []QuoteProvider
	log       *zap.Logger
}

func NewCascade(log *zap.Logger, providers ...QuoteProvider) *Cascade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cascade{providers: providers, log: log}
}

// Quote tries each provider in order and returns the first price found,
// together with the name of the provider that supplied it.
func (c *Cascade) Quote(ctx context.Context, ticker string) (decimal.Decimal, string, error) {
	for _, p := range c.providers {
		price, err := p.Quote(ctx, ticker)
		if err == nil {
			return price, p.Name(), nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, "", ctx.Err()
		}
		c.log.Debug("provider missed",
			zap.String("provider", p.Name()),
			zap.String("ticker", ticker),
			zap.Error(err),
		)
	}
	return decimal.Zero, "", fmt.Errorf("%s: %w", ticker, ErrQuoteUnavailable)
}

// =============================================================================
// HTTP PROVIDERS
// =============================================================================

const (
	defaultBrapiBaseURL      = "https://brapi.dev"
	defaultTwelveDataBaseURL = "https://api.twelvedata.com"
)

// ProviderConfig configures one HTTP quote provider. BaseURL and Token are
// injected so tests can point at a local server.
type ProviderConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (cfg ProviderConfig) client() *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Brapi answers B3 tickers: GET {base}/api/quote/{TICKER}?token=...
// with {"results":[{"regularMarketPrice": 12.34}]}.
type Brapi struct {
	cfg  ProviderConfig
	http *http.Client
}

func NewBrapi(cfg ProviderConfig) *Brapi {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBrapiBaseURL
	}
	return &Brapi{cfg: cfg, http: cfg.client()}
}

func (b *Brapi) Name() string { return "brapi" }

func (b *Brapi) Quote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/quote/%s?token=%s",
		strings.TrimRight(b.cfg.BaseURL, "/"),
		url.PathEscape(strings.ToUpper(ticker)),
		url.QueryEscape(b.cfg.Token),
	)

	var body struct {
		Results []struct {
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
		} `json:"results"`
	}
	if err := getJSON(ctx, b.http, endpoint, &body); err != nil {
		return decimal.Zero, err
	}
	if len(body.Results) == 0 || body.Results[0].RegularMarketPrice == nil {
		return decimal.Zero, ErrQuoteUnavailable
	}
	return decimal.NewFromFloat(*body.Results[0].RegularMarketPrice), nil
}

// TwelveData answers global tickers: GET {base}/price?symbol=...&apikey=...
// with {"price": "12.34"}.
type TwelveData struct {
	cfg  ProviderConfig
	http *http.Client
}

func NewTwelveData(cfg ProviderConfig) *TwelveData {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwelveDataBaseURL
	}
	return &TwelveData{cfg: cfg, http: cfg.client()}
}

func (t *TwelveData) Name() string { return "twelvedata" }

func (t *TwelveData) Quote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/price?symbol=%s&apikey=%s",
		strings.TrimRight(t.cfg.BaseURL, "/"),
		url.QueryEscape(ticker),
		url.QueryEscape(t.cfg.Token),
	)

	var body struct {
		Price string `json:"price"`
	}
	if err := getJSON(ctx, t.http, endpoint, &body); err != nil {
		return decimal.Zero, err
	}
	if body.Price == "" {
		return decimal.Zero, ErrQuoteUnavailable
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("twelvedata: bad price %q", body.Price)
	}
	return price, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrQuoteUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
