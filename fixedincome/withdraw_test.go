package fixedincome_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/portfolio-engine/fixedincome"
	"github.com/warp/portfolio-engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// twoContractAsset seeds the scenario asset: C1 contributed 2024-01-01 with
// balance 300, C2 contributed 2024-06-01 with balance 500.
func twoContractAsset(t *testing.T) (*store.Memory, fixedincome.ContractID, fixedincome.ContractID) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutAsset(fixedincome.Asset{ID: "asset-1", Class: fixedincome.ClassFixedIncome, Currency: "BRL"})

	c1 := fixedincome.Contract{
		AssetID:          "asset-1",
		ContributionDate: fixedincome.NewDate(2024, time.January, 1),
		Indexer:          fixedincome.IndexerShortRate,
		IndexerPct:       dec("1"),
		Balance:          dec("300.00"),
		LastUpdate:       fixedincome.NewDate(2024, time.January, 1),
	}
	c2 := fixedincome.Contract{
		AssetID:          "asset-1",
		ContributionDate: fixedincome.NewDate(2024, time.June, 1),
		Indexer:          fixedincome.IndexerShortRate,
		IndexerPct:       dec("1"),
		Balance:          dec("500.00"),
		LastUpdate:       fixedincome.NewDate(2024, time.June, 1),
	}
	ctx := context.Background()
	require.NoError(t, mem.CreateContract(ctx, &c1))
	require.NoError(t, mem.CreateContract(ctx, &c2))
	return mem, c1.ID, c2.ID
}

func pendingWithdrawal(id, amount string) fixedincome.Withdrawal {
	return fixedincome.Withdrawal{
		ID:      fixedincome.WithdrawalID(id),
		AssetID: "asset-1",
		Amount:  dec(amount),
	}
}

func contractByID(t *testing.T, mem *store.Memory, id fixedincome.ContractID) fixedincome.Contract {
	t.Helper()
	c, err := mem.Contract(context.Background(), id)
	require.NoError(t, err)
	return *c
}

// =============================================================================
// LIFO ALLOCATION SCENARIOS
// =============================================================================

func TestProcess_LIFO_DepletesNewestFirst(t *testing.T) {
	// GIVEN: C1 (2024-01-01, 300) and C2 (2024-06-01, 500)
	// WHEN: Withdrawing 600
	// THEN: C2 deducted 500 and closed; C1 deducted 100, balance 200, open;
	//       processed_amount = 600

	mem, c1ID, c2ID := twoContractAsset(t)
	ctx := context.Background()

	w := pendingWithdrawal("wd-1", "600.00")
	mem.PutWithdrawal(w)

	res, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.NoError(t, err)

	c1 := contractByID(t, mem, c1ID)
	c2 := contractByID(t, mem, c2ID)

	assert.Equal(t, "0.00", c2.Balance.StringFixed(2))
	assert.True(t, c2.Closed)
	assert.Equal(t, "200.00", c1.Balance.StringFixed(2))
	assert.False(t, c1.Closed)

	assert.True(t, res.Withdrawal.Processed)
	assert.Equal(t, "600.00", res.Withdrawal.ProcessedAmount.StringFixed(2))
	assert.True(t, res.Shortfall().IsZero())

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, c2ID, res.Allocations[0].ContractID, "newest lot depleted first")
	assert.Equal(t, "500.00", res.Allocations[0].Amount.StringFixed(2))
	assert.Equal(t, c1ID, res.Allocations[1].ContractID)
	assert.Equal(t, "100.00", res.Allocations[1].Amount.StringFixed(2))
}

func TestProcess_UnderFunded_StillProcessed(t *testing.T) {
	// GIVEN: Total available 800 across both contracts
	// WHEN: Withdrawing 900
	// THEN: Both contracts closed, processed_amount = 800 < requested 900,
	//       withdrawal still marked processed

	mem, c1ID, c2ID := twoContractAsset(t)
	ctx := context.Background()

	w := pendingWithdrawal("wd-1", "900.00")
	mem.PutWithdrawal(w)

	res, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.NoError(t, err)

	assert.True(t, contractByID(t, mem, c1ID).Closed)
	assert.True(t, contractByID(t, mem, c2ID).Closed)

	assert.True(t, res.Withdrawal.Processed)
	assert.Equal(t, "800.00", res.Withdrawal.ProcessedAmount.StringFixed(2))
	assert.Equal(t, "100.00", res.Shortfall().StringFixed(2))
}

func TestProcess_TieBreak_HigherSequenceFirst(t *testing.T) {
	// GIVEN: Two contracts sharing a contribution date
	// WHEN: Withdrawing less than either balance
	// THEN: The higher sequence id is depleted first, deterministically

	mem := store.NewMemory()
	mem.PutAsset(fixedincome.Asset{ID: "asset-1", Class: fixedincome.ClassFixedIncome})
	ctx := context.Background()

	sameDay := fixedincome.NewDate(2024, time.April, 1)
	older := fixedincome.Contract{AssetID: "asset-1", ContributionDate: sameDay, Balance: dec("100.00"), LastUpdate: sameDay}
	newer := fixedincome.Contract{AssetID: "asset-1", ContributionDate: sameDay, Balance: dec("100.00"), LastUpdate: sameDay}
	require.NoError(t, mem.CreateContract(ctx, &older))
	require.NoError(t, mem.CreateContract(ctx, &newer))
	require.Greater(t, newer.Sequence, older.Sequence)

	w := pendingWithdrawal("wd-1", "50.00")
	mem.PutWithdrawal(w)

	res, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.NoError(t, err)

	require.Len(t, res.Allocations, 1)
	assert.Equal(t, newer.ID, res.Allocations[0].ContractID)
	assert.Equal(t, "50.00", contractByID(t, mem, newer.ID).Balance.StringFixed(2))
	assert.Equal(t, "100.00", contractByID(t, mem, older.ID).Balance.StringFixed(2))
}

// =============================================================================
// CONSERVATION AND AUDIT TRAIL
// =============================================================================

func TestProcess_AllocationConservation(t *testing.T) {
	// sum(allocation amounts) == processed_amount, and no allocation exceeds
	// the balance its contract held before the deduction.
	mem, _, _ := twoContractAsset(t)
	ctx := context.Background()

	before := map[fixedincome.ContractID]decimal.Decimal{}
	contracts, err := mem.ContractsByAsset(ctx, "asset-1")
	require.NoError(t, err)
	for _, c := range contracts {
		before[c.ID] = c.Balance
	}

	w := pendingWithdrawal("wd-1", "600.00")
	mem.PutWithdrawal(w)

	res, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range res.Allocations {
		sum = sum.Add(a.Amount)
		assert.True(t, a.Amount.LessThanOrEqual(before[a.ContractID]))
		assert.Equal(t, w.ID, a.WithdrawalID)
		assert.NotEmpty(t, a.PlanID)
	}
	assert.True(t, sum.Equal(res.Withdrawal.ProcessedAmount))
	assert.Equal(t, len(res.Allocations), len(res.Withdrawal.AllocationIDs))
}

func TestProcess_AllocationsShareOnePlan(t *testing.T) {
	mem, _, _ := twoContractAsset(t)
	ctx := context.Background()

	w := pendingWithdrawal("wd-1", "600.00")
	mem.PutWithdrawal(w)

	res, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, res.Allocations[0].PlanID, res.Allocations[1].PlanID)
}

// =============================================================================
// STATE MACHINE AND CLOSURE MONOTONICITY
// =============================================================================

func TestProcess_AlreadyProcessed_NoOp(t *testing.T) {
	mem, _, _ := twoContractAsset(t)
	ctx := context.Background()

	w := pendingWithdrawal("wd-1", "600.00")
	mem.PutWithdrawal(w)

	alloc := fixedincome.NewAllocator(mem)
	first, err := alloc.Process(ctx, w)
	require.NoError(t, err)

	second, err := alloc.Process(ctx, first.Withdrawal)
	require.NoError(t, err)
	assert.Empty(t, second.Allocations, "terminal state: never reprocessed")
	assert.Len(t, mem.Allocations(), 2)
}

func TestProcess_ClosedContractStaysClosed(t *testing.T) {
	// GIVEN: A withdrawal already closed both contracts
	// WHEN: A later withdrawal arrives for the same asset
	// THEN: Closed contracts never reopen and their balances never change

	mem, c1ID, c2ID := twoContractAsset(t)
	ctx := context.Background()
	alloc := fixedincome.NewAllocator(mem)

	w1 := pendingWithdrawal("wd-1", "800.00")
	mem.PutWithdrawal(w1)
	_, err := alloc.Process(ctx, w1)
	require.NoError(t, err)

	w2 := pendingWithdrawal("wd-2", "100.00")
	mem.PutWithdrawal(w2)
	res, err := alloc.Process(ctx, w2)
	require.NoError(t, err)

	assert.Empty(t, res.Allocations, "nothing left to allocate")
	assert.True(t, res.Withdrawal.Processed)
	assert.True(t, res.Withdrawal.ProcessedAmount.IsZero())
	assert.True(t, contractByID(t, mem, c1ID).Closed)
	assert.True(t, contractByID(t, mem, c2ID).Closed)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestProcess_MissingAsset_LeftPending(t *testing.T) {
	mem, _, _ := twoContractAsset(t)
	ctx := context.Background()

	w := pendingWithdrawal("wd-1", "100.00")
	w.AssetID = ""
	mem.PutWithdrawal(w)

	_, err := fixedincome.NewAllocator(mem).Process(ctx, w)
	require.Error(t, err)
	assert.ErrorIs(t, err, fixedincome.ErrValidation)

	stored, ok := mem.Withdrawal("wd-1")
	require.True(t, ok)
	assert.False(t, stored.Processed, "left pending for retry")
}

// =============================================================================
// PURE PLAN
// =============================================================================

func TestBuildPlan_PureAndDeterministic(t *testing.T) {
	sameDay := fixedincome.NewDate(2024, time.April, 1)
	candidates := []fixedincome.Contract{
		{ID: "a", Sequence: 1, ContributionDate: sameDay, Balance: dec("100")},
		{ID: "b", Sequence: 3, ContributionDate: sameDay, Balance: dec("100")},
		{ID: "c", Sequence: 2, ContributionDate: sameDay, Balance: dec("100")},
	}
	w := fixedincome.Withdrawal{ID: "wd", AssetID: "x", Amount: dec("150")}

	plan := fixedincome.BuildPlan(w, candidates)

	require.Len(t, plan.Deductions, 2)
	assert.Equal(t, fixedincome.ContractID("b"), plan.Deductions[0].ContractID)
	assert.Equal(t, fixedincome.ContractID("c"), plan.Deductions[1].ContractID)
	assert.Equal(t, "150", plan.Total.String())

	// Input order untouched: the plan sorts a copy.
	assert.Equal(t, fixedincome.ContractID("a"), candidates[0].ID)
}

func TestBuildPlan_SkipsEmptyContracts(t *testing.T) {
	day := fixedincome.NewDate(2024, time.April, 1)
	candidates := []fixedincome.Contract{
		{ID: "drained", Sequence: 2, ContributionDate: day, Balance: decimal.Zero, Closed: true},
		{ID: "funded", Sequence: 1, ContributionDate: day, Balance: dec("40")},
	}
	w := fixedincome.Withdrawal{ID: "wd", AssetID: "x", Amount: dec("40")}

	plan := fixedincome.BuildPlan(w, candidates)

	require.Len(t, plan.Deductions, 1)
	assert.Equal(t, fixedincome.ContractID("funded"), plan.Deductions[0].ContractID)
}
