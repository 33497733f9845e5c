/*
Package factory provides JSON to Go portfolio conversion.

PURPOSE:
  Converts JSON portfolio definitions into domain entities. This enables
  bootstrapping a database without code changes - a portfolio can be
  described in JSON and loaded at startup or from an admin workflow.

WHY JSON?
  - Non-developers can describe holdings
  - Version control for portfolio definitions
  - Easy migration from external trackers

JSON SCHEMA:
  {
    "assets": [
      {
        "id": "cdb-bank",
        "name": "CDB Bank 110% CDI",
        "class": "fixed_income",
        "currency": "BRL",
        "indexer": "interbank_rate",
        "indexer_pct": "1.1"
      },
      {
        "id": "petr4",
        "name": "Petrobras PN",
        "class": "variable_income",
        "ticker": "PETR4"
      }
    ],
    "contributions": [
      {"id": "dep-1", "asset_id": "cdb-bank", "amount": "1000.00", "date": "2024-01-02"}
    ],
    "withdrawals": [
      {"id": "wd-1", "asset_id": "cdb-bank", "amount": "250.00"}
    ]
  }

KEY FEATURES:
  - Validates structure and references before anything is written
  - Sets sensible defaults (currency BRL, indexer percentage 1)
  - All monetary fields are decimal strings, never floats

USAGE:
  portfolio, err := factory.ParsePortfolio(data)
  if err != nil { ... }
  if err := portfolio.Seed(ctx, store); err != nil { ... }

SEE ALSO:
  - fixedincome/types.go: Domain entity definitions
  - store/sqlite/sqlite.go: Seed target
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PortfolioJSON is the JSON representation of a portfolio definition.
type PortfolioJSON struct {
	Assets        []AssetJSON        `json:"assets"`
	Contributions []ContributionJSON `json:"contributions,omitempty"`
	Withdrawals   []WithdrawalJSON   `json:"withdrawals,omitempty"`
}

// AssetJSON describes one asset.
type AssetJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Class      string `json:"class"` // fixed_income, variable_income
	Currency   string `json:"currency,omitempty"`
	Ticker     string `json:"ticker,omitempty"`
	Indexer    string `json:"indexer,omitempty"` // short_rate, interbank_rate, inflation_index
	IndexerPct string `json:"indexer_pct,omitempty"`
}

// ContributionJSON describes one inbound deposit.
type ContributionJSON struct {
	ID                string `json:"id"`
	AssetID           string `json:"asset_id"`
	Amount            string `json:"amount"`
	Date              string `json:"date"` // "2006-01-02"
	FixedRateOverride string `json:"fixed_rate_override,omitempty"`
}

// WithdrawalJSON describes one redemption request.
type WithdrawalJSON struct {
	ID      string `json:"id"`
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// =============================================================================
// PARSED PORTFOLIO
// =============================================================================

// Portfolio holds validated domain entities ready to be written to a store.
type Portfolio struct {
	Assets        []fixedincome.Asset
	Contributions []fixedincome.Contribution
	Withdrawals   []fixedincome.Withdrawal
}

// SeedStore is the write surface Seed needs.
type SeedStore interface {
	SaveAsset(ctx context.Context, a fixedincome.Asset) error
	SaveContribution(ctx context.Context, c fixedincome.Contribution) error
	SaveWithdrawal(ctx context.Context, w fixedincome.Withdrawal) error
}

// ParsePortfolio validates a JSON portfolio definition and converts it into
// domain entities. Nothing is written; a bad definition fails whole.
func ParsePortfolio(data []byte) (*Portfolio, error) {
	var doc PortfolioJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid portfolio JSON: %w", err)
	}

	p := &Portfolio{}
	assetIDs := make(map[string]bool)

	for i, a := range doc.Assets {
		asset, err := parseAsset(a)
		if err != nil {
			return nil, fmt.Errorf("asset %d (%q): %w", i, a.ID, err)
		}
		if assetIDs[a.ID] {
			return nil, fmt.Errorf("asset %d: duplicate id %q", i, a.ID)
		}
		assetIDs[a.ID] = true
		p.Assets = append(p.Assets, asset)
	}

	for i, c := range doc.Contributions {
		contrib, err := parseContribution(c)
		if err != nil {
			return nil, fmt.Errorf("contribution %d (%q): %w", i, c.ID, err)
		}
		if !assetIDs[c.AssetID] {
			return nil, fmt.Errorf("contribution %d: unknown asset %q", i, c.AssetID)
		}
		p.Contributions = append(p.Contributions, contrib)
	}

	for i, w := range doc.Withdrawals {
		wd, err := parseWithdrawal(w)
		if err != nil {
			return nil, fmt.Errorf("withdrawal %d (%q): %w", i, w.ID, err)
		}
		if !assetIDs[w.AssetID] {
			return nil, fmt.Errorf("withdrawal %d: unknown asset %q", i, w.AssetID)
		}
		p.Withdrawals = append(p.Withdrawals, wd)
	}

	return p, nil
}

// Seed writes the portfolio into a store: assets first, then the deposit and
// redemption events the engine will pick up on its next pass.
func (p *Portfolio) Seed(ctx context.Context, store SeedStore) error {
	for _, a := range p.Assets {
		if err := store.SaveAsset(ctx, a); err != nil {
			return fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
	}
	for _, c := range p.Contributions {
		if err := store.SaveContribution(ctx, c); err != nil {
			return fmt.Errorf("seed contribution %s: %w", c.ID, err)
		}
	}
	for _, w := range p.Withdrawals {
		if err := store.SaveWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("seed withdrawal %s: %w", w.ID, err)
		}
	}
	return nil
}

// =============================================================================
// FIELD PARSING
// =============================================================================

func parseAsset(a AssetJSON) (fixedincome.Asset, error) {
	var out fixedincome.Asset
	if a.ID == "" {
		return out, fmt.Errorf("missing id")
	}

	class := fixedincome.AssetClass(a.Class)
	switch class {
	case fixedincome.ClassFixedIncome, fixedincome.ClassVariableIncome:
	default:
		return out, fmt.Errorf("unknown class %q", a.Class)
	}

	indexer := fixedincome.IndexerKind(a.Indexer)
	switch indexer {
	case "", fixedincome.IndexerShortRate, fixedincome.IndexerInterbank, fixedincome.IndexerInflation:
	default:
		return out, fmt.Errorf("unknown indexer %q", a.Indexer)
	}
	if class == fixedincome.ClassFixedIncome && indexer == "" {
		return out, fmt.Errorf("fixed income asset needs an indexer")
	}

	currency := a.Currency
	if currency == "" {
		currency = "BRL"
	}

	pct := decimal.NewFromInt(1)
	if a.IndexerPct != "" {
		var err error
		if pct, err = decimal.NewFromString(a.IndexerPct); err != nil {
			return out, fmt.Errorf("bad indexer_pct: %w", err)
		}
	}

	out = fixedincome.Asset{
		ID:         fixedincome.AssetID(a.ID),
		Name:       a.Name,
		Class:      class,
		Currency:   currency,
		Ticker:     a.Ticker,
		Indexer:    indexer,
		IndexerPct: pct,
	}
	return out, nil
}

func parseContribution(c ContributionJSON) (fixedincome.Contribution, error) {
	var out fixedincome.Contribution
	if c.ID == "" {
		return out, fmt.Errorf("missing id")
	}

	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return out, fmt.Errorf("bad amount: %w", err)
	}
	if !amount.IsPositive() {
		return out, fmt.Errorf("amount must be positive, got %s", amount)
	}

	date, err := fixedincome.ParseDate(c.Date)
	if err != nil {
		return out, fmt.Errorf("bad date: %w", err)
	}

	out = fixedincome.Contribution{
		ID:      fixedincome.ContributionID(c.ID),
		AssetID: fixedincome.AssetID(c.AssetID),
		Amount:  amount,
		Date:    date,
	}
	if c.FixedRateOverride != "" {
		d, err := decimal.NewFromString(c.FixedRateOverride)
		if err != nil {
			return out, fmt.Errorf("bad fixed_rate_override: %w", err)
		}
		out.FixedRateOverride = &d
	}
	return out, nil
}

func parseWithdrawal(w WithdrawalJSON) (fixedincome.Withdrawal, error) {
	var out fixedincome.Withdrawal
	if w.ID == "" {
		return out, fmt.Errorf("missing id")
	}

	amount, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return out, fmt.Errorf("bad amount: %w", err)
	}
	if !amount.IsPositive() {
		return out, fmt.Errorf("amount must be positive, got %s", amount)
	}

	out = fixedincome.Withdrawal{
		ID:      fixedincome.WithdrawalID(w.ID),
		AssetID: fixedincome.AssetID(w.AssetID),
		Amount:  amount,
	}
	return out, nil
}
