/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

MONEY ENCODING:
  All monetary values are encoded as decimal strings ("1007.97"), never as
  JSON numbers. Clients must not lose precision on financial amounts.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AssetDTO represents an asset in API responses.
type AssetDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Class          string `json:"class"`
	Currency       string `json:"currency"`
	Ticker         string `json:"ticker,omitempty"`
	UnitPrice      string `json:"unit_price"`
	PriceUpdatedAt string `json:"price_updated_at,omitempty"`
	Indexer        string `json:"indexer,omitempty"`
	IndexerPct     string `json:"indexer_pct,omitempty"`
}

// ContractDTO represents an accruing contract in API responses.
type ContractDTO struct {
	ID               string `json:"id"`
	AssetID          string `json:"asset_id"`
	Sequence         int64  `json:"sequence"`
	ContributionDate string `json:"contribution_date"`
	DueDate          string `json:"due_date,omitempty"`
	Indexer          string `json:"indexer"`
	IndexerPct       string `json:"indexer_pct"`
	FixedRate        string `json:"fixed_rate"`
	Balance          string `json:"balance"`
	LastUpdate       string `json:"last_update"`
	Closed           bool   `json:"closed"`
}

// WithdrawalDTO represents a redemption request and its outcome.
type WithdrawalDTO struct {
	ID              string          `json:"id"`
	AssetID         string          `json:"asset_id"`
	Amount          string          `json:"amount"`
	Processed       bool            `json:"processed"`
	ProcessedAmount string          `json:"processed_amount"`
	ProcessedAt     string          `json:"processed_at,omitempty"`
	Shortfall       string          `json:"shortfall,omitempty"`
	Allocations     []AllocationDTO `json:"allocations,omitempty"`
}

// AllocationDTO is one line of a withdrawal's audit trail.
type AllocationDTO struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	ContractID string `json:"contract_id"`
	Amount     string `json:"amount"`
	CreatedAt  string `json:"created_at"`
}

// RunReportDTO summarizes one engine pass.
type RunReportDTO struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	AsOf       string `json:"as_of"`

	Promoted             int `json:"promoted"`
	WithdrawalsProcessed int `json:"withdrawals_processed"`
	ContractsAccrued     int `json:"contracts_accrued"`
	Skipped              int `json:"skipped"`

	Failures []EntityFailureDTO `json:"failures"`
}

// EntityFailureDTO is one isolated failure from a pass.
type EntityFailureDTO struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RunRequest optionally pins the as-of date of a triggered pass.
type RunRequest struct {
	AsOf string `json:"as_of,omitempty"` // "2006-01-02"; empty means today
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAssetDTO(a fixedincome.Asset) AssetDTO {
	dto := AssetDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Class:     string(a.Class),
		Currency:  a.Currency,
		Ticker:    a.Ticker,
		UnitPrice: a.UnitPrice.String(),
		Indexer:   string(a.Indexer),
	}
	if !a.PriceUpdatedAt.IsZero() {
		dto.PriceUpdatedAt = a.PriceUpdatedAt.Format(time.RFC3339)
	}
	if a.Indexer != "" {
		dto.IndexerPct = a.IndexerPct.String()
	}
	return dto
}

func toContractDTO(c fixedincome.Contract) ContractDTO {
	dto := ContractDTO{
		ID:               string(c.ID),
		AssetID:          string(c.AssetID),
		Sequence:         c.Sequence,
		ContributionDate: c.ContributionDate.String(),
		Indexer:          string(c.Indexer),
		IndexerPct:       c.IndexerPct.String(),
		FixedRate:        c.FixedRate.String(),
		Balance:          c.Balance.String(),
		LastUpdate:       c.LastUpdate.String(),
		Closed:           c.Closed,
	}
	if c.DueDate != nil {
		dto.DueDate = c.DueDate.String()
	}
	return dto
}

func toWithdrawalDTO(w fixedincome.Withdrawal, allocs []fixedincome.Allocation) WithdrawalDTO {
	dto := WithdrawalDTO{
		ID:              string(w.ID),
		AssetID:         string(w.AssetID),
		Amount:          w.Amount.String(),
		Processed:       w.Processed,
		ProcessedAmount: w.ProcessedAmount.String(),
	}
	if !w.ProcessedAt.IsZero() {
		dto.ProcessedAt = w.ProcessedAt.String()
	}
	if w.Processed {
		if short := w.Shortfall(); short.IsPositive() {
			dto.Shortfall = short.String()
		}
	}
	for _, a := range allocs {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			ID:         string(a.ID),
			PlanID:     a.PlanID,
			ContractID: string(a.ContractID),
			Amount:     a.Amount.String(),
			CreatedAt:  a.CreatedAt.Format(time.RFC3339),
		})
	}
	return dto
}

func toRunReportDTO(r fixedincome.RunReport) RunReportDTO {
	dto := RunReportDTO{
		StartedAt:            r.StartedAt.Format(time.RFC3339),
		FinishedAt:           r.FinishedAt.Format(time.RFC3339),
		AsOf:                 r.AsOf.String(),
		Promoted:             r.Promoted,
		WithdrawalsProcessed: r.WithdrawalsProcessed,
		ContractsAccrued:     r.ContractsAccrued,
		Skipped:              r.Skipped,
		Failures:             []EntityFailureDTO{},
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, EntityFailureDTO{
			Entity: f.Entity,
			ID:     f.ID,
			Reason: f.Reason,
		})
	}
	return dto
}
