/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements fixedincome.Store using SQLite as the system of record for
  Asset, Contract, Contribution, Withdrawal and Allocation entities.

APPEND-ONLY ENFORCEMENT:
  The allocations table is the audit trail: INSERT only, no UPDATE and no
  DELETE statements exist for it. Contracts are never deleted; only balance,
  last_update and closed mutate.

ORDERING:
  ContractsByAsset orders in SQL: contribution_date DESC, seq DESC. That is
  the LIFO candidate order the withdrawal allocator depends on, and seq
  carries a UNIQUE constraint so the tie-break is total.

NON-TRANSACTIONAL:
  Deliberately mirrors the production store's contract: no multi-record
  transactions are offered, so the engine's plan-then-commit retry semantics
  get exercised the same way against both backends.

CONCURRENCY:
  Uses sync.Mutex around writes. SQLite is opened in WAL mode so readers
  don't block.

USAGE:
  store, err := sqlite.New("./data/portfolio.db")
  if err != nil { ... }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/portfolio-engine/fixedincome"
)

// Store implements fixedincome.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ fixedincome.Store = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL DEFAULT '',
		class            TEXT NOT NULL,
		currency         TEXT NOT NULL DEFAULT '',
		ticker           TEXT NOT NULL DEFAULT '',
		unit_price       TEXT NOT NULL DEFAULT '0',
		price_updated_at TEXT NOT NULL DEFAULT '',
		indexer          TEXT NOT NULL DEFAULT '',
		indexer_pct      TEXT NOT NULL DEFAULT '1'
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id                TEXT PRIMARY KEY,
		asset_id          TEXT NOT NULL REFERENCES assets(id),
		seq               INTEGER NOT NULL UNIQUE,
		contribution_date TEXT NOT NULL,
		due_date          TEXT,
		indexer           TEXT NOT NULL,
		indexer_pct       TEXT NOT NULL,
		fixed_rate        TEXT NOT NULL,
		balance           TEXT NOT NULL,
		last_update       TEXT NOT NULL,
		closed            INTEGER NOT NULL DEFAULT 0
	);

	-- LIFO candidate order (hot path for withdrawal processing)
	CREATE INDEX IF NOT EXISTS idx_contracts_asset_lifo
		ON contracts(asset_id, contribution_date DESC, seq DESC);

	CREATE TABLE IF NOT EXISTS contributions (
		id                  TEXT PRIMARY KEY,
		asset_id            TEXT NOT NULL,
		amount              TEXT NOT NULL,
		date                TEXT NOT NULL,
		fixed_rate_override TEXT,
		contract_id         TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_unlinked
		ON contributions(contract_id) WHERE contract_id = '';

	CREATE TABLE IF NOT EXISTS withdrawals (
		id               TEXT PRIMARY KEY,
		asset_id         TEXT NOT NULL,
		amount           TEXT NOT NULL,
		processed        INTEGER NOT NULL DEFAULT 0,
		processed_amount TEXT NOT NULL DEFAULT '0',
		processed_at     TEXT NOT NULL DEFAULT ''
	);

	-- Append-only audit trail: no UPDATE or DELETE is ever issued here
	CREATE TABLE IF NOT EXISTS allocations (
		id            TEXT PRIMARY KEY,
		plan_id       TEXT NOT NULL,
		withdrawal_id TEXT NOT NULL,
		contract_id   TEXT NOT NULL,
		amount        TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_withdrawal
		ON allocations(withdrawal_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ASSETS
// =============================================================================

const assetColumns = `id, name, class, currency, ticker, unit_price, price_updated_at, indexer, indexer_pct`

func (s *Store) Assets(ctx context.Context) ([]fixedincome.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []fixedincome.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Asset(ctx context.Context, id fixedincome.AssetID) (*fixedincome.Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, fixedincome.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAsset inserts or replaces an asset record. Used for seeding; the
// engine itself only reads assets and caches prices.
func (s *Store) SaveAsset(ctx context.Context, a fixedincome.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	priceAt := ""
	if !a.PriceUpdatedAt.IsZero() {
		priceAt = a.PriceUpdatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Class, a.Currency, a.Ticker,
		a.UnitPrice.String(), priceAt, a.Indexer, a.IndexerPct.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *Store) UpdateAssetPrice(ctx context.Context, id fixedincome.AssetID, price decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET unit_price = ?, price_updated_at = ? WHERE id = ?`,
		price.String(), at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset price: %w", err)
	}
	return requireRow(res)
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, asset_id, seq, contribution_date, due_date, indexer, indexer_pct, fixed_rate, balance, last_update, closed`

func (s *Store) Contract(ctx context.Context, id fixedincome.ContractID) (*fixedincome.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, fixedincome.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ContractsByAsset(ctx context.Context, assetID fixedincome.AssetID) ([]fixedincome.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE asset_id = ?
		ORDER BY contribution_date DESC, seq DESC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var out []fixedincome.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateContract(ctx context.Context, c *fixedincome.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = fixedincome.ContractID(uuid.NewString())
	}

	// Sequence strictly greater than all existing; the mutex makes the
	// read-then-insert safe, the UNIQUE constraint backs it up.
	var next int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM contracts`).Scan(&next); err != nil {
		return fmt.Errorf("failed to assign sequence: %w", err)
	}
	c.Sequence = next

	var due any
	if c.DueDate != nil {
		due = c.DueDate.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AssetID, c.Sequence, c.ContributionDate.String(), due,
		c.Indexer, c.IndexerPct.String(), c.FixedRate.String(),
		c.Balance.String(), c.LastUpdate.String(), boolToInt(c.Closed),
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

func (s *Store) UpdateContract(ctx context.Context, c fixedincome.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET balance = ?, last_update = ?, closed = ?
		WHERE id = ?`,
		c.Balance.String(), c.LastUpdate.String(), boolToInt(c.Closed), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return requireRow(res)
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

const contributionColumns = `id, asset_id, amount, date, fixed_rate_override, contract_id`

// SaveContribution records an inbound deposit event. Creation is external to
// the engine; this is the ingestion path.
func (s *Store) SaveContribution(ctx context.Context, c fixedincome.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var override any
	if c.FixedRateOverride != nil {
		override = c.FixedRateOverride.String()
	}
	// INSERT OR IGNORE keeps repeated seed loads idempotent without
	// resetting contributions that were already promoted.
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.AssetID, c.Amount.String(), c.Date.String(), override, string(c.ContractID),
	)
	if err != nil {
		return fmt.Errorf("failed to save contribution: %w", err)
	}
	return nil
}

func (s *Store) UnlinkedContributions(ctx context.Context) ([]fixedincome.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contributionColumns+` FROM contributions
		WHERE contract_id = '' ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var out []fixedincome.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) LinkContribution(ctx context.Context, id fixedincome.ContributionID, contractID fixedincome.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The guard clause keeps promotion idempotent even on a racy retry.
	res, err := s.db.ExecContext(ctx,
		`UPDATE contributions SET contract_id = ? WHERE id = ? AND contract_id = ''`,
		contractID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to link contribution: %w", err)
	}
	return requireRow(res)
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

// SaveWithdrawal records a redemption request. Creation is external to the
// engine; this is the ingestion path.
func (s *Store) SaveWithdrawal(ctx context.Context, w fixedincome.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO withdrawals (id, asset_id, amount, processed, processed_amount, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.AssetID, w.Amount.String(), boolToInt(w.Processed),
		w.ProcessedAmount.String(), processedAtString(w),
	)
	if err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return nil
}

func (s *Store) UnprocessedWithdrawals(ctx context.Context) ([]fixedincome.Withdrawal, error) {
	return s.queryWithdrawals(ctx, `
		SELECT id, asset_id, amount, processed, processed_amount, processed_at
		FROM withdrawals WHERE processed = 0 ORDER BY id`)
}

// Withdrawals returns every withdrawal, processed or not.
func (s *Store) Withdrawals(ctx context.Context) ([]fixedincome.Withdrawal, error) {
	return s.queryWithdrawals(ctx, `
		SELECT id, asset_id, amount, processed, processed_amount, processed_at
		FROM withdrawals ORDER BY id`)
}

func (s *Store) queryWithdrawals(ctx context.Context, query string) ([]fixedincome.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []fixedincome.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Withdrawal returns one withdrawal with its allocation links populated.
func (s *Store) Withdrawal(ctx context.Context, id fixedincome.WithdrawalID) (*fixedincome.Withdrawal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, asset_id, amount, processed, processed_amount, processed_at
		FROM withdrawals WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if err == sql.ErrNoRows {
		return nil, fixedincome.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM allocations WHERE withdrawal_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var aid string
		if err := rows.Scan(&aid); err != nil {
			return nil, err
		}
		w.AllocationIDs = append(w.AllocationIDs, fixedincome.AllocationID(aid))
	}
	return &w, rows.Err()
}

func (s *Store) FinalizeWithdrawal(ctx context.Context, w fixedincome.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawals SET processed = 1, processed_amount = ?, processed_at = ?
		WHERE id = ? AND processed = 0`,
		w.ProcessedAmount.String(), processedAtString(w), w.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize withdrawal: %w", err)
	}
	return requireRow(res)
}

// =============================================================================
// ALLOCATIONS - Append-only
// =============================================================================

func (s *Store) CreateAllocation(ctx context.Context, a fixedincome.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allocations (id, plan_id, withdrawal_id, contract_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.PlanID, a.WithdrawalID, a.ContractID,
		a.Amount.String(), a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	return nil
}

// AllocationsByWithdrawal returns the audit trail of one withdrawal.
func (s *Store) AllocationsByWithdrawal(ctx context.Context, id fixedincome.WithdrawalID) ([]fixedincome.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, withdrawal_id, contract_id, amount, created_at
		FROM allocations WHERE withdrawal_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []fixedincome.Allocation
	for rows.Next() {
		var a fixedincome.Allocation
		var amount, createdAt string
		if err := rows.Scan(&a.ID, &a.PlanID, &a.WithdrawalID, &a.ContractID, &amount, &createdAt); err != nil {
			return nil, err
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad allocation amount %q: %w", amount, err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("bad allocation timestamp %q: %w", createdAt, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(r rowScanner) (fixedincome.Asset, error) {
	var a fixedincome.Asset
	var unitPrice, priceAt, indexerPct string
	if err := r.Scan(&a.ID, &a.Name, &a.Class, &a.Currency, &a.Ticker,
		&unitPrice, &priceAt, &a.Indexer, &indexerPct); err != nil {
		return a, err
	}
	var err error
	if a.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return a, fmt.Errorf("bad unit price %q: %w", unitPrice, err)
	}
	if a.IndexerPct, err = decimal.NewFromString(indexerPct); err != nil {
		return a, fmt.Errorf("bad indexer pct %q: %w", indexerPct, err)
	}
	if priceAt != "" {
		if a.PriceUpdatedAt, err = time.Parse(time.RFC3339, priceAt); err != nil {
			return a, fmt.Errorf("bad price timestamp %q: %w", priceAt, err)
		}
	}
	return a, nil
}

func scanContract(r rowScanner) (fixedincome.Contract, error) {
	var c fixedincome.Contract
	var contribDate, lastUpdate, indexerPct, fixedRate, balance string
	var due sql.NullString
	var closed int
	if err := r.Scan(&c.ID, &c.AssetID, &c.Sequence, &contribDate, &due,
		&c.Indexer, &indexerPct, &fixedRate, &balance, &lastUpdate, &closed); err != nil {
		return c, err
	}

	var err error
	if c.ContributionDate, err = fixedincome.ParseDate(contribDate); err != nil {
		return c, fmt.Errorf("bad contribution date %q: %w", contribDate, err)
	}
	if c.LastUpdate, err = fixedincome.ParseDate(lastUpdate); err != nil {
		return c, fmt.Errorf("bad last update %q: %w", lastUpdate, err)
	}
	if due.Valid {
		d, err := fixedincome.ParseDate(due.String)
		if err != nil {
			return c, fmt.Errorf("bad due date %q: %w", due.String, err)
		}
		c.DueDate = &d
	}
	if c.IndexerPct, err = decimal.NewFromString(indexerPct); err != nil {
		return c, fmt.Errorf("bad indexer pct %q: %w", indexerPct, err)
	}
	if c.FixedRate, err = decimal.NewFromString(fixedRate); err != nil {
		return c, fmt.Errorf("bad fixed rate %q: %w", fixedRate, err)
	}
	if c.Balance, err = decimal.NewFromString(balance); err != nil {
		return c, fmt.Errorf("bad balance %q: %w", balance, err)
	}
	c.Closed = closed != 0
	return c, nil
}

func scanContribution(r rowScanner) (fixedincome.Contribution, error) {
	var c fixedincome.Contribution
	var amount, date, contractID string
	var override sql.NullString
	if err := r.Scan(&c.ID, &c.AssetID, &amount, &date, &override, &contractID); err != nil {
		return c, err
	}

	var err error
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, fmt.Errorf("bad contribution amount %q: %w", amount, err)
	}
	if c.Date, err = fixedincome.ParseDate(date); err != nil {
		return c, fmt.Errorf("bad contribution date %q: %w", date, err)
	}
	if override.Valid {
		d, err := decimal.NewFromString(override.String)
		if err != nil {
			return c, fmt.Errorf("bad rate override %q: %w", override.String, err)
		}
		c.FixedRateOverride = &d
	}
	c.ContractID = fixedincome.ContractID(contractID)
	return c, nil
}

func scanWithdrawal(r rowScanner) (fixedincome.Withdrawal, error) {
	var w fixedincome.Withdrawal
	var amount, processedAmount, processedAt string
	var processed int
	if err := r.Scan(&w.ID, &w.AssetID, &amount, &processed, &processedAmount, &processedAt); err != nil {
		return w, err
	}

	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return w, fmt.Errorf("bad withdrawal amount %q: %w", amount, err)
	}
	if w.ProcessedAmount, err = decimal.NewFromString(processedAmount); err != nil {
		return w, fmt.Errorf("bad processed amount %q: %w", processedAmount, err)
	}
	w.Processed = processed != 0
	if processedAt != "" {
		if w.ProcessedAt, err = fixedincome.ParseDate(processedAt); err != nil {
			return w, fmt.Errorf("bad processed date %q: %w", processedAt, err)
		}
	}
	return w, nil
}

func processedAtString(w fixedincome.Withdrawal) string {
	if w.ProcessedAt.IsZero() {
		return ""
	}
	return w.ProcessedAt.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fixedincome.ErrNotFound
	}
	return nil
}
