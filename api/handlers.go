/*
handlers.go - HTTP API handlers for the portfolio engine

PURPOSE:
  Exposes the accrual and withdrawal engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Assets:
    GET    /api/assets                   List all assets
    GET    /api/assets/{id}              Get asset details
    GET    /api/assets/{id}/contracts    List the asset's contracts (LIFO order)

  Withdrawals:
    GET    /api/withdrawals              List withdrawals (pending and processed)
    GET    /api/withdrawals/{id}         One withdrawal with its audit trail

  Engine:
    POST   /api/runs                     Trigger one engine pass
    GET    /api/runs                     Recent pass reports (newest first)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (any backend implementing the Store interface)
  - Runner: The engine pass (promote, withdraw, accrue)
  - Recent run reports kept in memory for the /api/runs listing

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the API reads from: the engine's store
// plus the audit queries the UI needs.
type Store interface {
	fixedincome.Store
	Withdrawals(ctx context.Context) ([]fixedincome.Withdrawal, error)
	AllocationsByWithdrawal(ctx context.Context, id fixedincome.WithdrawalID) ([]fixedincome.Allocation, error)
}

// maxRunHistory bounds the in-memory run report listing.
const maxRunHistory = 50

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Runner *fixedincome.Runner

	mu   sync.Mutex
	runs []RunReportDTO // newest first
}

// NewHandler creates a new handler with the given store and runner.
func NewHandler(store Store, runner *fixedincome.Runner) *Handler {
	return &Handler{Store: store, Runner: runner}
}

// =============================================================================
// ASSET HANDLERS
// =============================================================================

// ListAssets returns all assets.
// GET /api/assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Store.Assets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}

	dtos := make([]AssetDTO, len(assets))
	for i, a := range assets {
		dtos[i] = toAssetDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAsset returns a single asset.
// GET /api/assets/{id}
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := fixedincome.AssetID(chi.URLParam(r, "id"))

	asset, err := h.Store.Asset(r.Context(), id)
	if errors.Is(err, fixedincome.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Asset not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(*asset))
}

// GetAssetContracts returns the asset's contracts in withdrawal candidate
// order (newest contribution first).
// GET /api/assets/{id}/contracts
func (h *Handler) GetAssetContracts(w http.ResponseWriter, r *http.Request) {
	id := fixedincome.AssetID(chi.URLParam(r, "id"))

	if _, err := h.Store.Asset(r.Context(), id); errors.Is(err, fixedincome.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Asset not found", nil)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get asset", err)
		return
	}

	contracts, err := h.Store.ContractsByAsset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WITHDRAWAL HANDLERS
// =============================================================================

// ListWithdrawals returns every withdrawal, pending and processed.
// GET /api/withdrawals
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.Store.Withdrawals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}

	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i, wd := range withdrawals {
		dtos[i] = toWithdrawalDTO(wd, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWithdrawal returns one withdrawal with its allocation audit trail.
// GET /api/withdrawals/{id}
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := fixedincome.WithdrawalID(chi.URLParam(r, "id"))

	withdrawals, err := h.Store.Withdrawals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get withdrawal", err)
		return
	}
	var found *fixedincome.Withdrawal
	for i := range withdrawals {
		if withdrawals[i].ID == id {
			found = &withdrawals[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "Withdrawal not found", nil)
		return
	}

	allocs, err := h.Store.AllocationsByWithdrawal(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTO(*found, allocs))
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// TriggerRun executes one engine pass and returns its report.
// POST /api/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var report fixedincome.RunReport
	var err error
	if req.AsOf != "" {
		asOf, perr := fixedincome.ParseDate(req.AsOf)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date, want YYYY-MM-DD", perr)
			return
		}
		report, err = h.Runner.RunAsOf(r.Context(), asOf)
	} else {
		report, err = h.Runner.Run(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Run failed", err)
		return
	}

	dto := toRunReportDTO(report)
	h.recordRun(dto)
	writeJSON(w, http.StatusOK, dto)
}

// ListRuns returns recent pass reports, newest first.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	out := make([]RunReportDTO, len(h.runs))
	copy(out, h.runs)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

// RecordRun stores a pass report in the bounded history. Exposed so the
// scheduler's automatic passes show up in /api/runs too.
func (h *Handler) RecordRun(report fixedincome.RunReport) {
	h.recordRun(toRunReportDTO(report))
}

func (h *Handler) recordRun(dto RunReportDTO) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append([]RunReportDTO{dto}, h.runs...)
	if len(h.runs) > maxRunHistory {
		h.runs = h.runs[:maxRunHistory]
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
