package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/portfolio-engine/factory"
	"github.com/warp/portfolio-engine/fixedincome"
	"github.com/warp/portfolio-engine/store/sqlite"
)

const validPortfolio = `{
	"assets": [
		{
			"id": "cdb-bank",
			"name": "CDB Bank 110% CDI",
			"class": "fixed_income",
			"indexer": "interbank_rate",
			"indexer_pct": "1.1"
		},
		{
			"id": "petr4",
			"name": "Petrobras PN",
			"class": "variable_income",
			"ticker": "PETR4"
		}
	],
	"contributions": [
		{"id": "dep-1", "asset_id": "cdb-bank", "amount": "1000.00", "date": "2024-01-02"},
		{"id": "dep-2", "asset_id": "cdb-bank", "amount": "500.00", "date": "2024-02-01", "fixed_rate_override": "0.02"}
	],
	"withdrawals": [
		{"id": "wd-1", "asset_id": "cdb-bank", "amount": "250.00"}
	]
}`

func TestParsePortfolio_Valid(t *testing.T) {
	// GIVEN a complete portfolio definition
	// WHEN it is parsed
	p, err := factory.ParsePortfolio([]byte(validPortfolio))

	// THEN entities come out with defaults applied
	require.NoError(t, err)
	require.Len(t, p.Assets, 2)
	require.Len(t, p.Contributions, 2)
	require.Len(t, p.Withdrawals, 1)

	cdb := p.Assets[0]
	assert.Equal(t, fixedincome.ClassFixedIncome, cdb.Class)
	assert.Equal(t, "BRL", cdb.Currency) // default
	assert.Equal(t, "1.1", cdb.IndexerPct.String())

	require.NotNil(t, p.Contributions[1].FixedRateOverride)
	assert.Equal(t, "0.02", p.Contributions[1].FixedRateOverride.String())
	assert.Nil(t, p.Contributions[0].FixedRateOverride)
}

func TestParsePortfolio_DefaultsIndexerPctToOne(t *testing.T) {
	p, err := factory.ParsePortfolio([]byte(`{
		"assets": [{"id": "lc", "class": "fixed_income", "indexer": "short_rate"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1", p.Assets[0].IndexerPct.String())
}

func TestParsePortfolio_Rejections(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{
			name: "unknown class",
			json: `{"assets": [{"id": "a", "class": "crypto"}]}`,
			want: "unknown class",
		},
		{
			name: "fixed income without indexer",
			json: `{"assets": [{"id": "a", "class": "fixed_income"}]}`,
			want: "needs an indexer",
		},
		{
			name: "unknown indexer",
			json: `{"assets": [{"id": "a", "class": "fixed_income", "indexer": "libor"}]}`,
			want: "unknown indexer",
		},
		{
			name: "duplicate asset id",
			json: `{"assets": [
				{"id": "a", "class": "variable_income"},
				{"id": "a", "class": "variable_income"}
			]}`,
			want: "duplicate id",
		},
		{
			name: "contribution references unknown asset",
			json: `{"assets": [{"id": "a", "class": "variable_income"}],
				"contributions": [{"id": "d", "asset_id": "b", "amount": "1", "date": "2024-01-02"}]}`,
			want: "unknown asset",
		},
		{
			name: "non-positive contribution",
			json: `{"assets": [{"id": "a", "class": "variable_income"}],
				"contributions": [{"id": "d", "asset_id": "a", "amount": "0", "date": "2024-01-02"}]}`,
			want: "must be positive",
		},
		{
			name: "withdrawal references unknown asset",
			json: `{"withdrawals": [{"id": "w", "asset_id": "a", "amount": "1"}]}`,
			want: "unknown asset",
		},
		{
			name: "monetary value as JSON number",
			json: `{"assets": [{"id": "a", "class": "variable_income"}],
				"contributions": [{"id": "d", "asset_id": "a", "amount": 100, "date": "2024-01-02"}]}`,
			want: "invalid portfolio JSON",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ParsePortfolio([]byte(tc.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSeed_WritesEverything(t *testing.T) {
	// GIVEN a parsed portfolio and an empty database
	p, err := factory.ParsePortfolio([]byte(validPortfolio))
	require.NoError(t, err)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	// WHEN it is seeded
	require.NoError(t, p.Seed(ctx, db))

	// THEN assets, contributions and withdrawals are all present
	assets, err := db.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	contribs, err := db.UnlinkedContributions(ctx)
	require.NoError(t, err)
	assert.Len(t, contribs, 2)

	pending, err := db.UnprocessedWithdrawals(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
