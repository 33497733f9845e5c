/*
accrual.go - Balance growth under an indexer over a business-day window

PURPOSE:
  Advances a contract's balance over the elapsed window using its indexer
  configuration and the run's rate snapshot.

WINDOW:
  start = contract.LastUpdate
  end   = min(asOf, contract.DueDate or asOf)
  Empty or negative windows, and closed contracts, are a no-op (skip).
  Accrual is strictly forward-only: it must never run twice over the same
  interval, which the LastUpdate := end assignment guarantees.

GROWTH FACTORS:
  short_rate / interbank_rate:
    effective_annual = benchmark * indexerPct + fixedRate
    daily  = (1 + effective_annual) ^ (1/252)
    factor = daily ^ businessDays(start, end)

  inflation_index:
    inflation = 1 + accumulatedIndex(start, end)   (0 when not yet published)
    real      = (1 + fixedRate) ^ (businessDays / 252)
    factor    = inflation * real

ROUNDING:
  new_balance = RoundBalance(balance * factor), round-half-to-even at 2
  decimals, the single rounding rule applied everywhere balances change.

  The factor itself is computed in float64: the exponents are fractional and
  the snapshot rates arrive with limited precision anyway. Only the final
  multiply-and-round touches the decimal balance.

CLOSING:
  Accrual never closes a contract. Closing is exclusively a withdrawal-
  allocator responsibility.
*/
package fixedincome

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL ENGINE
// =============================================================================

type AccrualEngine struct {
	calendar *Calendar
}

func NewAccrualEngine(calendar *Calendar) *AccrualEngine {
	return &AccrualEngine{calendar: calendar}
}

// AccrualResult reports the outcome of one Accrue call. Applied is false for
// skips (closed contract or empty window); the contract is returned unchanged
// in that case.
type AccrualResult struct {
	Contract Contract
	Applied  bool

	// Diagnostics for reporting; meaningful only when Applied.
	BusinessDays int
	Factor       float64
}

// Accrue returns the contract advanced to the end of its accrual window.
// It does not persist anything; callers persist the returned contract.
//
// Failure modes (contract returned unchanged, error set):
//   - *UnknownIndexerError for unsupported indexer kinds
//   - *RateUnavailableError when the required benchmark is absent
func (e *AccrualEngine) Accrue(c Contract, snap RateSnapshot, asOf Date) (AccrualResult, error) {
	skip := AccrualResult{Contract: c, Applied: false}

	if c.Closed {
		return skip, nil
	}

	start := c.LastUpdate
	end := asOf
	if c.DueDate != nil {
		end = MinDate(asOf, *c.DueDate)
	}
	if start.AfterOrEqual(end) {
		return skip, nil
	}

	days := e.calendar.BusinessDaysBetween(start, end)

	var factor float64
	switch c.Indexer {
	case IndexerShortRate, IndexerInterbank:
		benchmark, name := snap.ShortRate, "short_rate"
		if c.Indexer == IndexerInterbank {
			benchmark, name = snap.InterbankRate, "interbank_rate"
		}
		if benchmark == nil {
			return skip, &RateUnavailableError{ContractID: c.ID, Rate: name}
		}
		annual, _ := benchmark.Mul(c.IndexerPct).Add(c.FixedRate).Float64()
		daily := math.Pow(1+annual, 1.0/252)
		factor = math.Pow(daily, float64(days))

	case IndexerInflation:
		accumulated, _ := snap.AccumulatedIndex(start, end).Float64()
		fixed, _ := c.FixedRate.Float64()
		real := math.Pow(1+fixed, float64(days)/252)
		factor = (1 + accumulated) * real

	default:
		return skip, &UnknownIndexerError{ContractID: c.ID, Kind: c.Indexer}
	}

	c.Balance = RoundBalance(c.Balance.Mul(decimal.NewFromFloat(factor)))
	c.LastUpdate = end

	return AccrualResult{
		Contract:     c,
		Applied:      true,
		BusinessDays: days,
		Factor:       factor,
	}, nil
}
