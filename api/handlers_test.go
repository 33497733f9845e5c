package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/portfolio-engine/api"
	"github.com/warp/portfolio-engine/fixedincome"
	"github.com/warp/portfolio-engine/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newTestServer wires a memory store, a runner with a static CDI rate, and
// the full router.
func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	cdi := dec("0.10")
	runner := fixedincome.NewRunner(fixedincome.RunnerConfig{
		Store:    mem,
		Calendar: fixedincome.NewCalendar(nil),
		Rates:    fixedincome.StaticRates{Rates: fixedincome.RateSnapshot{InterbankRate: &cdi}},
	})

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(mem, runner)))
	t.Cleanup(srv.Close)
	return srv, mem
}

func seedFixedIncomeAsset(mem *store.Memory) {
	mem.PutAsset(fixedincome.Asset{
		ID:         "cdb-bank",
		Name:       "CDB Bank",
		Class:      fixedincome.ClassFixedIncome,
		Currency:   "BRL",
		Indexer:    fixedincome.IndexerInterbank,
		IndexerPct: dec("1.1"),
	})
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestListAssets(t *testing.T) {
	// GIVEN a store with one asset
	srv, mem := newTestServer(t)
	seedFixedIncomeAsset(mem)

	// WHEN the asset list is requested
	var got []api.AssetDTO
	resp := getJSON(t, srv, "/api/assets", &got)

	// THEN the asset comes back with decimal fields as strings
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got, 1)
	assert.Equal(t, "cdb-bank", got[0].ID)
	assert.Equal(t, "fixed_income", got[0].Class)
	assert.Equal(t, "1.1", got[0].IndexerPct)
}

func TestGetAsset_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv, "/api/assets/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetAssetContracts_LIFOOrder(t *testing.T) {
	// GIVEN two contracts created on different dates
	srv, mem := newTestServer(t)
	seedFixedIncomeAsset(mem)
	ctx := context.Background()

	older := fixedincome.Contract{
		ID: "c-old", AssetID: "cdb-bank",
		ContributionDate: fixedincome.NewDate(2024, 1, 2),
		Indexer:          fixedincome.IndexerInterbank,
		IndexerPct:       dec("1"), FixedRate: decimal.Zero,
		Balance: dec("300"), LastUpdate: fixedincome.NewDate(2024, 1, 2),
	}
	newer := older
	newer.ID = "c-new"
	newer.ContributionDate = fixedincome.NewDate(2024, 6, 3)
	newer.LastUpdate = newer.ContributionDate
	require.NoError(t, mem.CreateContract(ctx, &older))
	require.NoError(t, mem.CreateContract(ctx, &newer))

	// WHEN the contract listing is requested
	var got []api.ContractDTO
	resp := getJSON(t, srv, "/api/assets/cdb-bank/contracts", &got)

	// THEN newest contribution comes first
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got, 2)
	assert.Equal(t, "c-new", got[0].ID)
	assert.Equal(t, "c-old", got[1].ID)
	assert.Equal(t, "300", got[0].Balance)
}

func TestTriggerRun_FullPass(t *testing.T) {
	// GIVEN a deposit and a redemption awaiting processing
	srv, mem := newTestServer(t)
	seedFixedIncomeAsset(mem)
	mem.PutContribution(fixedincome.Contribution{
		ID: "dep-1", AssetID: "cdb-bank",
		Amount: dec("1000"), Date: fixedincome.NewDate(2024, 1, 1),
	})
	mem.PutWithdrawal(fixedincome.Withdrawal{
		ID: "wd-1", AssetID: "cdb-bank", Amount: dec("100"),
	})

	// WHEN a pass is triggered with a pinned as-of date
	body := strings.NewReader(`{"as_of":"2024-01-30"}`)
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var report api.RunReportDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))

	// THEN the report counts each phase and the pass shows up in history
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2024-01-30", report.AsOf)
	assert.Equal(t, 1, report.Promoted)
	assert.Equal(t, 1, report.WithdrawalsProcessed)
	assert.Equal(t, 1, report.ContractsAccrued)
	assert.Empty(t, report.Failures)

	var runs []api.RunReportDTO
	getJSON(t, srv, "/api/runs", &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-01-30", runs[0].AsOf)
}

func TestTriggerRun_BadAsOfDate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/runs", "application/json",
		strings.NewReader(`{"as_of":"30/01/2024"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWithdrawal_WithAuditTrail(t *testing.T) {
	// GIVEN a processed withdrawal produced by a real pass
	srv, mem := newTestServer(t)
	seedFixedIncomeAsset(mem)
	mem.PutContribution(fixedincome.Contribution{
		ID: "dep-1", AssetID: "cdb-bank",
		Amount: dec("1000"), Date: fixedincome.NewDate(2024, 1, 1),
	})
	mem.PutWithdrawal(fixedincome.Withdrawal{
		ID: "wd-1", AssetID: "cdb-bank", Amount: dec("100"),
	})
	resp, err := http.Post(srv.URL+"/api/runs", "application/json",
		strings.NewReader(`{"as_of":"2024-01-30"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// WHEN the withdrawal detail is requested
	var got api.WithdrawalDTO
	detail := getJSON(t, srv, "/api/withdrawals/wd-1", &got)

	// THEN it is processed in full and carries its allocation lines
	assert.Equal(t, http.StatusOK, detail.StatusCode)
	assert.True(t, got.Processed)
	assert.Equal(t, "100", got.ProcessedAmount)
	assert.Empty(t, got.Shortfall)
	require.Len(t, got.Allocations, 1)
	assert.Equal(t, "100", got.Allocations[0].Amount)
	assert.NotEmpty(t, got.Allocations[0].PlanID)
}

func TestGetWithdrawal_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv, "/api/withdrawals/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWithdrawals_IncludesShortfall(t *testing.T) {
	// GIVEN an under-funded withdrawal processed by a pass
	srv, mem := newTestServer(t)
	seedFixedIncomeAsset(mem)
	mem.PutContribution(fixedincome.Contribution{
		ID: "dep-1", AssetID: "cdb-bank",
		Amount: dec("500"), Date: fixedincome.NewDate(2024, 1, 1),
	})
	mem.PutWithdrawal(fixedincome.Withdrawal{
		ID: "wd-1", AssetID: "cdb-bank", Amount: dec("800"),
	})
	resp, err := http.Post(srv.URL+"/api/runs", "application/json",
		strings.NewReader(`{"as_of":"2024-01-02"}`))
	require.NoError(t, err)
	resp.Body.Close()

	// WHEN the withdrawal listing is requested
	var got []api.WithdrawalDTO
	getJSON(t, srv, "/api/withdrawals", &got)

	// THEN the shortfall is surfaced
	require.Len(t, got, 1)
	assert.True(t, got[0].Processed)
	assert.Equal(t, "500", got[0].ProcessedAmount)
	assert.Equal(t, "300", got[0].Shortfall)
}
