/*
Package fixedincome provides the core fixed-income accrual and
withdrawal-allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for a portfolio of
  fixed-income lots ("contracts"). Each contract's principal grows under a
  pluggable interest-rate indexer, and redemption requests are satisfied by
  depleting contracts in a deterministic LIFO order, leaving an auditable
  allocation trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A day-granular point in time (contract windows are whole days)
  - Asset / Contract / Contribution / Withdrawal / Allocation: The ledger
    entities, with Allocation as the immutable audit record
  - IndexerKind: Which exogenous rate drives a contract's growth
  - RateSnapshot: The point-in-time bundle of rates for one engine run

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift on money
  2. Immutability: Allocations are never modified or deleted
  3. Determinism: Contract ordering is a total order (date, then sequence)
  4. Explicit configuration: No process-wide singletons; calendars, rate
     providers and stores are injected at construction

SEE ALSO:
  - accrual.go:  Balance growth under an indexer over a business-day window
  - withdraw.go: LIFO allocation of redemption requests
  - promote.go:  Turning inbound contributions into contracts
  - store.go:    Persistence interface (the system of record)
*/
package fixedincome

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE - Day-granular time point
// =============================================================================

// Date is a calendar day in UTC. All accrual windows, contribution dates and
// due dates are day-granular; intraday time never affects balances.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// StartOfMonth returns the first day of d's month. Inflation index points are
// anchored to first-of-month dates.
func (d Date) StartOfMonth() Date { return NewDate(d.Year(), d.Month(), 1) }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// MinDate returns the earlier of two dates.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AssetID string
type ContractID string
type ContributionID string
type WithdrawalID string
type AllocationID string

// =============================================================================
// ASSET - One investment position, variable- or fixed-income
// =============================================================================

type AssetClass string

const (
	ClassVariableIncome AssetClass = "variable_income"
	ClassFixedIncome    AssetClass = "fixed_income"
)

// Asset identity is immutable once created; only display fields (name,
// cached unit price) may change.
type Asset struct {
	ID       AssetID
	Name     string
	Class    AssetClass
	Currency string

	// Variable-income only: quote lookup symbol and last cached price.
	Ticker         string
	UnitPrice      decimal.Decimal
	PriceUpdatedAt time.Time

	// Fixed-income only: indexer configuration inherited by new contracts.
	Indexer    IndexerKind
	IndexerPct decimal.Decimal // multiplier on the benchmark, 1 = 100%
}

// =============================================================================
// INDEXER - What exogenous rate a contract's balance tracks
// =============================================================================

type IndexerKind string

const (
	// IndexerShortRate tracks the overnight policy rate (e.g. Selic).
	IndexerShortRate IndexerKind = "short_rate"
	// IndexerInterbank tracks the interbank overnight rate (e.g. CDI),
	// which closely follows the short rate minus a small spread.
	IndexerInterbank IndexerKind = "interbank_rate"
	// IndexerInflation tracks a monthly published consumer-price index
	// (e.g. IPCA) plus a fixed real rate.
	IndexerInflation IndexerKind = "inflation_index"
)

// =============================================================================
// CONTRACT - One lot of fixed-income principal
// =============================================================================

// Contract is one lot of principal. Created by the contribution promoter;
// mutated only by the accrual engine (Balance, LastUpdate) and the withdrawal
// allocator (Balance, Closed); never deleted.
//
// INVARIANTS:
//   - Balance >= 0
//   - Closed <=> Balance == 0, and once true stays true forever
//   - LastUpdate never decreases across runs
//   - Sequence is unique and strictly increasing (LIFO tie-break only)
type Contract struct {
	ID               ContractID
	AssetID          AssetID
	Sequence         int64
	ContributionDate Date
	DueDate          *Date // nil = no maturity

	Indexer    IndexerKind
	IndexerPct decimal.Decimal // multiplier on the benchmark, 1 = 100%
	FixedRate  decimal.Decimal // additional fixed annual rate (spread)

	Balance    decimal.Decimal
	LastUpdate Date
	Closed     bool
}

// =============================================================================
// CONTRIBUTION - Inbound deposit, promoted once into a contract
// =============================================================================

// Contribution is created externally. It is mutated exactly once, when
// promoted, to record the spawned contract; thereafter immutable.
type Contribution struct {
	ID      ContributionID
	AssetID AssetID
	Amount  decimal.Decimal
	Date    Date

	// FixedRateOverride, when set, becomes the contract's fixed annual rate
	// instead of the default 0.
	FixedRateOverride *decimal.Decimal

	// ContractID is empty until promoted. A linked contribution is never
	// promoted again.
	ContractID ContractID
}

func (c Contribution) Promoted() bool { return c.ContractID != "" }

// =============================================================================
// WITHDRAWAL - Redemption request, processed at most once
// =============================================================================

// Withdrawal is created externally and mutated exactly once by the allocator.
// State machine: PENDING -> PROCESSED (terminal).
type Withdrawal struct {
	ID      WithdrawalID
	AssetID AssetID
	Amount  decimal.Decimal // requested

	Processed       bool
	ProcessedAmount decimal.Decimal
	ProcessedAt     Date
	AllocationIDs   []AllocationID
}

// Shortfall is the requested amount not covered by available contract
// balances. Zero for fully satisfied withdrawals. Callers should check this:
// an under-funded withdrawal is still marked processed.
func (w Withdrawal) Shortfall() decimal.Decimal {
	if !w.Processed {
		return decimal.Zero
	}
	s := w.Amount.Sub(w.ProcessedAmount)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// =============================================================================
// ALLOCATION - Immutable audit record of one deduction
// =============================================================================

// Allocation links one withdrawal to one contract with the amount deducted.
// Never mutated or deleted: the durable audit trail of where redeemed money
// came from. PlanID groups the allocations of a single processing pass so a
// retry after a partial commit is detectable.
type Allocation struct {
	ID           AllocationID
	PlanID       string
	WithdrawalID WithdrawalID
	ContractID   ContractID
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// =============================================================================
// RATE SNAPSHOT - Exogenous rates for one engine run
// =============================================================================

// IndexPoint is one monthly published value of an inflation index, anchored
// to the first day of its month. Value is the monthly variation in decimal
// form (0.004 = 0.4%).
type IndexPoint struct {
	Month Date
	Value decimal.Decimal
}

// RateSnapshot bundles the exogenous rates for a run. A nil rate means the
// provider could not supply it; the accrual engine must treat that as
// unavailable and skip, never default to zero growth.
type RateSnapshot struct {
	ShortRate     *decimal.Decimal // annualized, decimal form (0.10 = 10% a.a.)
	InterbankRate *decimal.Decimal // annualized, decimal form
	Inflation     []IndexPoint     // monthly series, ascending by month
}

// AccumulatedIndex compounds the monthly index values published for each
// month touched by [start, end], anchored to the first-of-month record
// covering start's month. Returns zero when no published values fall in the
// window: the index is treated as "not yet available", not as an error.
func (s RateSnapshot) AccumulatedIndex(start, end Date) decimal.Decimal {
	anchor := start.StartOfMonth()
	acc := decimal.NewFromInt(1)
	found := false
	for _, p := range s.Inflation {
		if p.Month.Before(anchor) || p.Month.After(end) {
			continue
		}
		acc = acc.Mul(decimal.NewFromInt(1).Add(p.Value))
		found = true
	}
	if !found {
		return decimal.Zero
	}
	return acc.Sub(decimal.NewFromInt(1))
}

// =============================================================================
// MONETARY ROUNDING - Single pinned policy
// =============================================================================

// RoundBalance applies the one rounding rule used everywhere balances are
// rounded: round-half-to-even at 2 decimal places. Repeated runs compound
// rounding error, so the rule must be identical across implementations.
func RoundBalance(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}
