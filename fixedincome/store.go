/*
store.go - Persistence interface for the ledger entities

PURPOSE:
  Defines the interface between the engine and the system of record for
  Asset, Contract, Contribution, Withdrawal and Allocation entities.
  Different implementations can use SQLite or in-memory storage.

KEY CONTRACTS:
  - Allocations are APPEND-ONLY: created, never updated, never deleted
  - Contracts are never deleted; only Balance, LastUpdate and Closed mutate
  - ContractsByAsset returns a deterministic LIFO candidate order:
    descending contribution date, ties broken by descending sequence id
  - CreateContract assigns a sequence id strictly greater than all existing

NON-TRANSACTIONAL:
  The store is assumed non-transactional (no atomic multi-record commit).
  A failure between an allocation create and the withdrawal finalize leaves
  a partially-applied state; this is recoverable by re-running, because
  re-selecting candidates reflects already-reduced balances. Allocations
  carry a plan id so a retry of the same pass is detectable.

IMPLEMENTATIONS:
  - store:        in-memory, for tests and development
  - store/sqlite: SQLite-backed system of record
*/
package fixedincome

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - System of record for ledger entities
// =============================================================================

type Store interface {
	// Assets returns every asset in the ledger.
	Assets(ctx context.Context) ([]Asset, error)

	// Asset returns one asset, or ErrNotFound.
	Asset(ctx context.Context, id AssetID) (*Asset, error)

	// UpdateAssetPrice caches the latest market quote on a variable-income
	// asset. Display-only; never touches fixed-income balances.
	UpdateAssetPrice(ctx context.Context, id AssetID, price decimal.Decimal, at time.Time) error

	// Contract returns one contract, or ErrNotFound.
	Contract(ctx context.Context, id ContractID) (*Contract, error)

	// ContractsByAsset returns all contracts of an asset ordered descending
	// by contribution date, ties broken descending by sequence id.
	ContractsByAsset(ctx context.Context, assetID AssetID) ([]Contract, error)

	// CreateContract persists a new contract, assigning an id (when empty)
	// and a sequence id strictly greater than all existing sequence ids.
	CreateContract(ctx context.Context, c *Contract) error

	// UpdateContract persists contract mutations (Balance, LastUpdate, Closed).
	UpdateContract(ctx context.Context, c Contract) error

	// UnlinkedContributions returns contributions not yet promoted.
	UnlinkedContributions(ctx context.Context) ([]Contribution, error)

	// LinkContribution records the contract a contribution spawned.
	// Called exactly once per contribution.
	LinkContribution(ctx context.Context, id ContributionID, contractID ContractID) error

	// UnprocessedWithdrawals returns withdrawals still pending.
	UnprocessedWithdrawals(ctx context.Context) ([]Withdrawal, error)

	// CreateAllocation appends an immutable allocation record.
	CreateAllocation(ctx context.Context, a Allocation) error

	// FinalizeWithdrawal marks a withdrawal processed, recording the
	// processed amount and allocation links. Called exactly once.
	FinalizeWithdrawal(ctx context.Context, w Withdrawal) error
}

// =============================================================================
// RATE PROVIDER - External supplier of the run's rate snapshot
// =============================================================================

// RateProvider supplies exogenous rates covering [from, to]. Any field of the
// snapshot may be absent; the accrual engine treats absence as unavailable.
type RateProvider interface {
	Snapshot(ctx context.Context, from, to Date) (RateSnapshot, error)
}

// StaticRates is a RateProvider returning a fixed snapshot. Useful for tests
// and for runs where rates are supplied out of band.
type StaticRates struct {
	Rates RateSnapshot
}

func (s StaticRates) Snapshot(context.Context, Date, Date) (RateSnapshot, error) {
	return s.Rates, nil
}
