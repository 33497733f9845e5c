/*
Package marketdata supplies exogenous market data to the engine: the rate
snapshot for fixed-income accrual and best-effort quotes for variable-income
assets.

PURPOSE:
  The engine core never talks to the network. This package implements the
  external collaborator interfaces (fixedincome.RateProvider, the quote
  cascade) against real data services, with every endpoint and token injected
  as configuration.

RATE SOURCES:
  The Banco Central do Brasil SGS time-series API:
    series 1178 - Selic over (annualized, percent)
    series  433 - IPCA monthly variation (percent)
  The interbank (CDI) rate tracks Selic minus a 10bp spread, floored at zero.

ABSENCE SEMANTICS:
  A series that cannot be fetched yields an absent snapshot field, never a
  zero. The accrual engine skips contracts whose benchmark is absent.
*/
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// BCB SGS CLIENT - fixedincome.RateProvider implementation
// =============================================================================

const (
	defaultBCBBaseURL = "https://api.bcb.gov.br"
	seriesSelicOver   = 1178
	seriesIPCA        = 433
)

// interbankSpread is the conventional CDI gap below Selic, 10bp annualized.
var interbankSpread = decimal.RequireFromString("0.001")

type BCBConfig struct {
	BaseURL string        // defaults to the public BCB endpoint
	Timeout time.Duration // per-request; defaults to 10s
	Log     *zap.Logger
}

type BCBClient struct {
	base string
	http *http.Client
	log  *zap.Logger
}

var _ fixedincome.RateProvider = (*BCBClient)(nil)

func NewBCBClient(cfg BCBConfig) *BCBClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBCBBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &BCBClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Snapshot fetches the current Selic over rate and the IPCA series covering
// [from, to]. Per-series failures leave the corresponding field absent; the
// call itself fails only when the context is done.
func (c *BCBClient) Snapshot(ctx context.Context, from, to fixedincome.Date) (fixedincome.RateSnapshot, error) {
	var snap fixedincome.RateSnapshot

	selic, err := c.selicOver(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		c.log.Warn("selic unavailable", zap.Error(err))
	} else {
		snap.ShortRate = &selic
		cdi := selic.Sub(interbankSpread)
		if cdi.IsNegative() {
			cdi = decimal.Zero
		}
		snap.InterbankRate = &cdi
	}

	points, err := c.ipcaSeries(ctx, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		c.log.Warn("ipca series unavailable", zap.Error(err))
	} else {
		snap.Inflation = points
	}

	return snap, nil
}

// sgsObservation is one row of an SGS series response. Values arrive as
// Brazilian-formatted strings ("10,75").
type sgsObservation struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

func (c *BCBClient) selicOver(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/dados/serie/bcdata.sgs.%d/dados/ultimos/1?formato=json", c.base, seriesSelicOver)

	var rows []sgsObservation
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("sgs series %d: empty response", seriesSelicOver)
	}

	pct, err := parseBRDecimal(rows[0].Valor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sgs series %d: %w", seriesSelicOver, err)
	}
	return pct.Div(decimal.NewFromInt(100)), nil
}

func (c *BCBClient) ipcaSeries(ctx context.Context, from, to fixedincome.Date) ([]fixedincome.IndexPoint, error) {
	url := fmt.Sprintf(
		"%s/dados/serie/bcdata.sgs.%d/dados?dataInicial=%s&dataFinal=%s&formato=json",
		c.base, seriesIPCA,
		from.StartOfMonth().Time().Format("02/01/2006"),
		to.Time().Format("02/01/2006"),
	)

	var rows []sgsObservation
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return nil, err
	}

	points := make([]fixedincome.IndexPoint, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse("02/01/2006", row.Data)
		if err != nil {
			return nil, fmt.Errorf("sgs series %d: bad date %q", seriesIPCA, row.Data)
		}
		pct, err := parseBRDecimal(row.Valor)
		if err != nil {
			return nil, fmt.Errorf("sgs series %d: %w", seriesIPCA, err)
		}
		points = append(points, fixedincome.IndexPoint{
			Month: fixedincome.DateOf(t).StartOfMonth(),
			Value: pct.Div(decimal.NewFromInt(100)),
		})
	}
	return points, nil
}

func (c *BCBClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SGS answers 404 for ranges with no published observations.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parseBRDecimal parses "10,75" into a decimal.
func parseBRDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}
