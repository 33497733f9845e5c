// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	assets        map[fixedincome.AssetID]fixedincome.Asset
	contracts     map[fixedincome.ContractID]fixedincome.Contract
	contributions map[fixedincome.ContributionID]fixedincome.Contribution
	withdrawals   map[fixedincome.WithdrawalID]fixedincome.Withdrawal
	allocations   []fixedincome.Allocation
	nextSequence  int64
}

var _ fixedincome.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		assets:        make(map[fixedincome.AssetID]fixedincome.Asset),
		contracts:     make(map[fixedincome.ContractID]fixedincome.Contract),
		contributions: make(map[fixedincome.ContributionID]fixedincome.Contribution),
		withdrawals:   make(map[fixedincome.WithdrawalID]fixedincome.Withdrawal),
		nextSequence:  1,
	}
}

// Seed helpers for tests and development fixtures.

func (m *Memory) PutAsset(a fixedincome.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
}

func (m *Memory) PutContribution(c fixedincome.Contribution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributions[c.ID] = c
}

func (m *Memory) PutWithdrawal(w fixedincome.Withdrawal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawals[w.ID] = w
}

// Allocations returns a copy of every allocation record, in creation order.
func (m *Memory) Allocations() []fixedincome.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]fixedincome.Allocation, len(m.allocations))
	copy(out, m.allocations)
	return out
}

// Withdrawal returns one withdrawal by id (test helper).
func (m *Memory) Withdrawal(id fixedincome.WithdrawalID) (fixedincome.Withdrawal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.withdrawals[id]
	return w, ok
}

// Withdrawals returns every withdrawal, processed or not, sorted by id.
func (m *Memory) Withdrawals(_ context.Context) ([]fixedincome.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fixedincome.Withdrawal, 0, len(m.withdrawals))
	for _, w := range m.withdrawals {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AllocationsByWithdrawal returns the audit trail of one withdrawal.
func (m *Memory) AllocationsByWithdrawal(_ context.Context, id fixedincome.WithdrawalID) ([]fixedincome.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fixedincome.Allocation
	for _, a := range m.allocations {
		if a.WithdrawalID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

// Contribution returns one contribution by id (test helper).
func (m *Memory) Contribution(id fixedincome.ContributionID) (fixedincome.Contribution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contributions[id]
	return c, ok
}

// =============================================================================
// fixedincome.Store implementation
// =============================================================================

func (m *Memory) Assets(_ context.Context) ([]fixedincome.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fixedincome.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Asset(_ context.Context, id fixedincome.AssetID) (*fixedincome.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, fixedincome.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) UpdateAssetPrice(_ context.Context, id fixedincome.AssetID, price decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[id]
	if !ok {
		return fixedincome.ErrNotFound
	}
	a.UnitPrice = price
	a.PriceUpdatedAt = at
	m.assets[id] = a
	return nil
}

func (m *Memory) Contract(_ context.Context, id fixedincome.ContractID) (*fixedincome.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, fixedincome.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ContractsByAsset(_ context.Context, assetID fixedincome.AssetID) ([]fixedincome.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fixedincome.Contract
	for _, c := range m.contracts {
		if c.AssetID == assetID {
			out = append(out, c)
		}
	}
	// LIFO candidate order: newest contribution first, sequence breaks ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ContributionDate.Equal(out[j].ContributionDate) {
			return out[i].ContributionDate.After(out[j].ContributionDate)
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out, nil
}

func (m *Memory) CreateContract(_ context.Context, c *fixedincome.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = fixedincome.ContractID(uuid.NewString())
	}
	c.Sequence = m.nextSequence
	m.nextSequence++
	m.contracts[c.ID] = *c
	return nil
}

func (m *Memory) UpdateContract(_ context.Context, c fixedincome.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[c.ID]; !ok {
		return fixedincome.ErrNotFound
	}
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) UnlinkedContributions(_ context.Context) ([]fixedincome.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fixedincome.Contribution
	for _, c := range m.contributions {
		if !c.Promoted() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LinkContribution(_ context.Context, id fixedincome.ContributionID, contractID fixedincome.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contributions[id]
	if !ok {
		return fixedincome.ErrNotFound
	}
	c.ContractID = contractID
	m.contributions[id] = c
	return nil
}

func (m *Memory) UnprocessedWithdrawals(_ context.Context) ([]fixedincome.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fixedincome.Withdrawal
	for _, w := range m.withdrawals {
		if !w.Processed {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateAllocation(_ context.Context, a fixedincome.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations = append(m.allocations, a)
	return nil
}

func (m *Memory) FinalizeWithdrawal(_ context.Context, w fixedincome.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.withdrawals[w.ID]; !ok {
		return fixedincome.ErrNotFound
	}
	m.withdrawals[w.ID] = w
	return nil
}
