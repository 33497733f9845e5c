/*
withdraw.go - LIFO allocation of redemption requests

PURPOSE:
  Satisfies a withdrawal by depleting the asset's contracts most-recent-first,
  writing one immutable Allocation per deduction as the audit trail.

STATE MACHINE:
  PENDING -> PROCESSED. Terminal. No other states, no un-processing.

ORDERING:
  Candidates are ordered descending by contribution date, ties broken
  descending by sequence id. That is the only total order guaranteeing
  determinism when two contracts share a contribution date, and it realizes
  LIFO: the most recently opened lot is depleted first.

PLAN THEN COMMIT:
  Allocation is computed first as a pure plan (no side effects), then applied
  as a sequence of writes keyed by a unique plan id. The store is
  non-transactional; a failure mid-commit leaves a partially-applied state
  that a re-run recovers from, since re-selected candidates reflect the
  already-reduced balances.

UNDER-FUNDING:
  When total available balance is short of the request, the withdrawal is
  still marked processed with processedAmount < requested. Callers detect the
  shortfall via Withdrawal.Shortfall().
*/
package fixedincome

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION PLAN - Pure computation, no side effects
// =============================================================================

type Deduction struct {
	ContractID ContractID
	Amount     decimal.Decimal
}

// AllocationPlan is the full set of deductions that will satisfy (possibly
// partially) one withdrawal. PlanID ties the resulting allocation records to
// this pass for retry detection.
type AllocationPlan struct {
	PlanID       string
	WithdrawalID WithdrawalID
	Deductions   []Deduction
	Total        decimal.Decimal
}

// BuildPlan orders the candidates LIFO and greedily allocates the requested
// amount. Pure: mutates nothing, reads only its arguments.
func BuildPlan(w Withdrawal, candidates []Contract) AllocationPlan {
	ordered := make([]Contract, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ContributionDate.Equal(ordered[j].ContributionDate) {
			return ordered[i].ContributionDate.After(ordered[j].ContributionDate)
		}
		return ordered[i].Sequence > ordered[j].Sequence
	})

	plan := AllocationPlan{
		PlanID:       uuid.NewString(),
		WithdrawalID: w.ID,
		Total:        decimal.Zero,
	}

	remaining := w.Amount
	for _, c := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !c.Balance.IsPositive() {
			continue
		}
		deduction := decimal.Min(c.Balance, remaining)
		plan.Deductions = append(plan.Deductions, Deduction{ContractID: c.ID, Amount: deduction})
		plan.Total = plan.Total.Add(deduction)
		remaining = remaining.Sub(deduction)
	}
	return plan
}

// =============================================================================
// WITHDRAWAL ALLOCATOR
// =============================================================================

type Allocator struct {
	store Store
	now   func() time.Time
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, now: time.Now}
}

// ProcessedResult is the outcome of one Process call.
type ProcessedResult struct {
	Withdrawal  Withdrawal
	Allocations []Allocation
}

func (r ProcessedResult) Shortfall() decimal.Decimal { return r.Withdrawal.Shortfall() }

// Process satisfies one pending withdrawal.
//
// NOT safe for concurrent execution against the same asset: two concurrent
// calls would read overlapping contract balances and double-allocate.
// Callers must serialize processing per asset.
func (a *Allocator) Process(ctx context.Context, w Withdrawal) (ProcessedResult, error) {
	if w.Processed {
		// Terminal state; never reprocessed.
		return ProcessedResult{Withdrawal: w}, nil
	}
	if w.AssetID == "" {
		return ProcessedResult{}, &ValidationError{Entity: "withdrawal", ID: string(w.ID), Field: "asset"}
	}
	if !w.Amount.IsPositive() {
		return ProcessedResult{}, &ValidationError{Entity: "withdrawal", ID: string(w.ID), Field: "amount"}
	}

	// Step 1: one consistent read of the candidates.
	candidates, err := a.store.ContractsByAsset(ctx, w.AssetID)
	if err != nil {
		return ProcessedResult{}, &StoreError{Op: "load contracts", Err: err}
	}

	// Step 2: pure greedy plan.
	plan := BuildPlan(w, candidates)

	byID := make(map[ContractID]Contract, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	// Step 3: commit. Allocation record first, then the balance decrement,
	// so the audit trail never under-reports a deduction that happened.
	result := ProcessedResult{}
	for _, d := range plan.Deductions {
		alloc := Allocation{
			ID:           AllocationID(uuid.NewString()),
			PlanID:       plan.PlanID,
			WithdrawalID: w.ID,
			ContractID:   d.ContractID,
			Amount:       d.Amount,
			CreatedAt:    a.now(),
		}
		if err := a.store.CreateAllocation(ctx, alloc); err != nil {
			return ProcessedResult{}, &StoreError{Op: "create allocation", Err: err}
		}
		result.Allocations = append(result.Allocations, alloc)

		contract := byID[d.ContractID]
		contract.Balance = contract.Balance.Sub(d.Amount)
		if contract.Balance.IsNegative() {
			contract.Balance = decimal.Zero
		}
		contract.Closed = contract.Balance.IsZero()
		if err := a.store.UpdateContract(ctx, contract); err != nil {
			return ProcessedResult{}, &StoreError{Op: "update contract", Err: err}
		}
		byID[d.ContractID] = contract
	}

	// Step 4: finalize.
	w.Processed = true
	w.ProcessedAmount = plan.Total
	w.ProcessedAt = DateOf(a.now())
	w.AllocationIDs = w.AllocationIDs[:0]
	for _, alloc := range result.Allocations {
		w.AllocationIDs = append(w.AllocationIDs, alloc.ID)
	}
	if err := a.store.FinalizeWithdrawal(ctx, w); err != nil {
		return ProcessedResult{}, &StoreError{Op: "finalize withdrawal", Err: err}
	}

	result.Withdrawal = w
	return result, nil
}
