/*
promote.go - Turning unlinked contributions into contracts

PURPOSE:
  An inbound deposit (Contribution) arrives from outside the engine with no
  contract behind it. The promoter opens a new contract holding that
  principal, inheriting the asset's default indexer configuration, and links
  the contribution to it.

IDEMPOTENCY:
  A contribution already linked to a contract is never promoted again.
  Promotion is the only mutation a contribution ever receives.

FAILURE:
  A contribution missing its amount or asset fails validation and stays
  unlinked, eligible for retry once corrected.
*/
package fixedincome

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRIBUTION PROMOTER
// =============================================================================

type Promoter struct {
	store Store
}

func NewPromoter(store Store) *Promoter {
	return &Promoter{store: store}
}

// PromoteResult reports the outcome of one Promote call. Promoted is false
// for the idempotent no-op on an already-linked contribution.
type PromoteResult struct {
	Promoted bool
	Contract *Contract
}

// Promote opens a contract for an unlinked contribution and links it.
//
// The new contract starts with balance = contribution amount, both dates set
// to the contribution date, the asset's default indexer, and the fixed-rate
// override when present. The store assigns a sequence id strictly greater
// than all existing ids.
func (p *Promoter) Promote(ctx context.Context, contrib Contribution) (PromoteResult, error) {
	if contrib.Promoted() {
		return PromoteResult{Promoted: false}, nil
	}

	if contrib.AssetID == "" {
		return PromoteResult{}, &ValidationError{Entity: "contribution", ID: string(contrib.ID), Field: "asset"}
	}
	if !contrib.Amount.IsPositive() {
		return PromoteResult{}, &ValidationError{Entity: "contribution", ID: string(contrib.ID), Field: "amount"}
	}
	if contrib.Date.IsZero() {
		return PromoteResult{}, &ValidationError{Entity: "contribution", ID: string(contrib.ID), Field: "date"}
	}

	asset, err := p.store.Asset(ctx, contrib.AssetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PromoteResult{}, &ValidationError{Entity: "contribution", ID: string(contrib.ID), Field: "asset"}
		}
		return PromoteResult{}, &StoreError{Op: "load asset", Err: err}
	}

	fixedRate := decimal.Zero
	if contrib.FixedRateOverride != nil {
		fixedRate = *contrib.FixedRateOverride
	}
	indexerPct := asset.IndexerPct
	if indexerPct.IsZero() {
		indexerPct = decimal.NewFromInt(1) // default 100% of the benchmark
	}

	contract := Contract{
		ID:               ContractID(uuid.NewString()),
		AssetID:          asset.ID,
		ContributionDate: contrib.Date,
		Indexer:          asset.Indexer,
		IndexerPct:       indexerPct,
		FixedRate:        fixedRate,
		Balance:          contrib.Amount,
		LastUpdate:       contrib.Date,
		Closed:           false,
	}

	if err := p.store.CreateContract(ctx, &contract); err != nil {
		return PromoteResult{}, &StoreError{Op: "create contract", Err: err}
	}
	if err := p.store.LinkContribution(ctx, contrib.ID, contract.ID); err != nil {
		// Contract exists but the link failed: the contribution stays
		// unlinked and a later run would open a duplicate contract. Surface
		// loudly; the contract id in the error is what the operator needs.
		return PromoteResult{}, &StoreError{Op: "link contribution to contract " + string(contract.ID), Err: err}
	}

	return PromoteResult{Promoted: true, Contract: &contract}, nil
}
