/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore and generic.TokenLedger on one SQLite
  database, so a finalization (state update, history row, transfers and
  burn) commits or rolls back as a single SQL transaction.

INTERFACES IMPLEMENTED:
  generic.TxStore:        Processor state, distributions, WithTx
  generic.TokenLedger:    Balances and total supply
  generic.MintableLedger: Genesis supply for development databases

APPEND-ONLY ENFORCEMENT:
  - processed_periods rows are only ever inserted (INSERT OR IGNORE)
  - distributions rows are only ever inserted
  - processor_state.last_processed is guarded to never decrease

KEY TABLES:
  processor_state:   One row per processor account
  processed_periods: Idempotency markers
  distributions:     Audit history of finalizations
  balances:          Token balances (decimal as TEXT)
  token_supply:      Single-row total supply

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection; SQLite has
  one writer anyway. Inside WithTx every statement goes through the
  *sql.Tx, never the pool.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/fees.db", "NRG")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fee-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	unit generic.Unit
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database. Ledger amounts are
// denominated in unit.
func New(dbPath string, unit generic.Unit) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, unit: unit}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- One row per deployed processor
	CREATE TABLE IF NOT EXISTS processor_state (
		processor TEXT PRIMARY KEY,
		last_processed INTEGER NOT NULL,
		deployed_at INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Idempotency markers (insert-only)
	CREATE TABLE IF NOT EXISTS processed_periods (
		processor TEXT NOT NULL,
		period INTEGER NOT NULL,
		PRIMARY KEY (processor, period)
	);

	-- Finalization history (append-only)
	CREATE TABLE IF NOT EXISTS distributions (
		id TEXT PRIMARY KEY,
		processor TEXT NOT NULL,
		from_period INTEGER NOT NULL,
		period INTEGER NOT NULL,
		unit TEXT NOT NULL,
		pool_value TEXT NOT NULL,
		wallet_value TEXT NOT NULL,
		reward_value TEXT NOT NULL,
		retained_value TEXT NOT NULL,
		burned INTEGER NOT NULL,
		from_cycle INTEGER NOT NULL,
		to_cycle INTEGER NOT NULL,
		caller TEXT NOT NULL,
		executed_at INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_distributions_processor_period
		ON distributions(processor, period);

	-- Token ledger
	CREATE TABLE IF NOT EXISTS balances (
		account TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS token_supply (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO token_supply (id, value) VALUES (1, '0');
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROCESSOR STATE (generic.Store interface)
// =============================================================================

func (s *Store) LoadState(ctx context.Context, processor generic.Address) (generic.ProcessorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadState(ctx, s.db, processor)
}

func loadState(ctx context.Context, q querier, processor generic.Address) (generic.ProcessorState, error) {
	var last, deployedAt int64
	err := q.QueryRowContext(ctx,
		`SELECT last_processed, deployed_at FROM processor_state WHERE processor = ?`,
		processor,
	).Scan(&last, &deployedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ProcessorState{}, fmt.Errorf("processor %s: %w", processor, generic.ErrStateNotFound)
	}
	if err != nil {
		return generic.ProcessorState{}, fmt.Errorf("failed to load processor state: %w", err)
	}

	state := generic.ProcessorState{
		Processor:     processor,
		LastProcessed: generic.PeriodIdx(last),
		Processed:     make(map[generic.PeriodIdx]bool),
		DeployedAt:    generic.Timestamp(deployedAt),
	}

	rows, err := q.QueryContext(ctx,
		`SELECT period FROM processed_periods WHERE processor = ? ORDER BY period`,
		processor,
	)
	if err != nil {
		return generic.ProcessorState{}, fmt.Errorf("failed to load processed periods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return generic.ProcessorState{}, err
		}
		state.Processed[generic.PeriodIdx(p)] = true
	}
	return state, rows.Err()
}

func (s *Store) SaveState(ctx context.Context, state generic.ProcessorState) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.SaveState(ctx, state)
	})
}

func saveState(ctx context.Context, q querier, state generic.ProcessorState) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO processor_state (processor, last_processed, deployed_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(processor) DO UPDATE SET
			last_processed = MAX(last_processed, excluded.last_processed),
			updated_at = excluded.updated_at
	`,
		state.Processor,
		int64(state.LastProcessed),
		int64(state.DeployedAt),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save processor state: %w", err)
	}

	for _, p := range state.ProcessedPeriods() {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed_periods (processor, period) VALUES (?, ?)`,
			state.Processor, int64(p),
		); err != nil {
			return fmt.Errorf("failed to mark period %d: %w", p, err)
		}
	}
	return nil
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

func (s *Store) AppendDistribution(ctx context.Context, processor generic.Address, d generic.Distribution) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.AppendDistribution(ctx, processor, d)
	})
}

func appendDistribution(ctx context.Context, q querier, processor generic.Address, d generic.Distribution) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO distributions
		(id, processor, from_period, period, unit, pool_value, wallet_value, reward_value,
		 retained_value, burned, from_cycle, to_cycle, caller, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		processor,
		int64(d.FromPeriod),
		int64(d.Period),
		d.Pool.Unit,
		d.Pool.Value.String(),
		d.Split.Wallet.Value.String(),
		d.Split.Reward.Value.String(),
		d.Split.Retained.Value.String(),
		d.Burned,
		int64(d.FromCycle),
		int64(d.ToCycle),
		d.Caller,
		int64(d.ExecutedAt),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("period %d already has a distribution: %w", d.Period, err)
		}
		return fmt.Errorf("failed to append distribution: %w", err)
	}
	return nil
}

func (s *Store) ListDistributions(ctx context.Context, processor generic.Address) ([]generic.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDistributions(ctx, s.db, processor)
}

func listDistributions(ctx context.Context, q querier, processor generic.Address) ([]generic.Distribution, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, from_period, period, unit, pool_value, wallet_value, reward_value,
		       retained_value, burned, from_cycle, to_cycle, caller, executed_at
		FROM distributions WHERE processor = ? ORDER BY period
	`, processor)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	var result []generic.Distribution
	for rows.Next() {
		var (
			d                              generic.Distribution
			id, unit, caller               string
			pool, wallet, reward, retained string
			fromPeriod, period             int64
			fromCycle, toCycle, executedAt int64
			burned                         bool
		)
		if err := rows.Scan(&id, &fromPeriod, &period, &unit, &pool, &wallet, &reward,
			&retained, &burned, &fromCycle, &toCycle, &caller, &executedAt); err != nil {
			return nil, err
		}
		d.ID = generic.DistributionID(id)
		d.FromPeriod = generic.PeriodIdx(fromPeriod)
		d.Period = generic.PeriodIdx(period)
		d.Pool = parseAmount(pool, unit)
		d.Split = generic.Split{
			Wallet:   parseAmount(wallet, unit),
			Reward:   parseAmount(reward, unit),
			Retained: parseAmount(retained, unit),
		}
		d.Burned = burned
		d.FromCycle = generic.CycleIdx(fromCycle)
		d.ToCycle = generic.CycleIdx(toCycle)
		d.Caller = generic.Address(caller)
		d.ExecutedAt = generic.Timestamp(executedAt)
		result = append(result, d)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, unit: s.unit}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx   *sql.Tx
	unit generic.Unit
}

func (ts *txStore) LoadState(ctx context.Context, processor generic.Address) (generic.ProcessorState, error) {
	return loadState(ctx, ts.tx, processor)
}

func (ts *txStore) SaveState(ctx context.Context, state generic.ProcessorState) error {
	return saveState(ctx, ts.tx, state)
}

func (ts *txStore) AppendDistribution(ctx context.Context, processor generic.Address, d generic.Distribution) error {
	return appendDistribution(ctx, ts.tx, processor, d)
}

func (ts *txStore) ListDistributions(ctx context.Context, processor generic.Address) ([]generic.Distribution, error) {
	return listDistributions(ctx, ts.tx, processor)
}

func (ts *txStore) Ledger() generic.TokenLedger {
	return &sqlLedger{q: ts.tx, unit: ts.unit}
}

// =============================================================================
// TOKEN LEDGER
// =============================================================================

// Ledger returns the token ledger. Each write runs in its own transaction.
func (s *Store) Ledger() generic.TokenLedger {
	return &Ledger{store: s}
}

// Ledger is the store's TokenLedger outside of WithTx.
type Ledger struct {
	store *Store
}

func (l *Ledger) BalanceOf(ctx context.Context, account generic.Address) (generic.Amount, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return (&sqlLedger{q: l.store.db, unit: l.store.unit}).BalanceOf(ctx, account)
}

func (l *Ledger) TotalSupply(ctx context.Context) (generic.Amount, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return (&sqlLedger{q: l.store.db, unit: l.store.unit}).TotalSupply(ctx)
}

func (l *Ledger) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	return l.store.WithTx(ctx, func(tx generic.Store) error {
		return tx.Ledger().Transfer(ctx, from, to, amount)
	})
}

func (l *Ledger) Burn(ctx context.Context, from generic.Address, amount generic.Amount) error {
	return l.store.WithTx(ctx, func(tx generic.Store) error {
		return tx.Ledger().Burn(ctx, from, amount)
	})
}

func (l *Ledger) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	return l.store.WithTx(ctx, func(tx generic.Store) error {
		return tx.Ledger().(*sqlLedger).Mint(ctx, to, amount)
	})
}

// sqlLedger runs ledger statements on a querier, usually a *sql.Tx.
type sqlLedger struct {
	q    querier
	unit generic.Unit
}

func (l *sqlLedger) BalanceOf(ctx context.Context, account generic.Address) (generic.Amount, error) {
	v, err := l.balance(ctx, account)
	if err != nil {
		return generic.Amount{}, err
	}
	return generic.NewAmount(v, l.unit), nil
}

func (l *sqlLedger) TotalSupply(ctx context.Context) (generic.Amount, error) {
	var value string
	if err := l.q.QueryRowContext(ctx, `SELECT value FROM token_supply WHERE id = 1`).Scan(&value); err != nil {
		return generic.Amount{}, fmt.Errorf("failed to read supply: %w", err)
	}
	return parseAmount(value, string(l.unit)), nil
}

func (l *sqlLedger) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer %s: negative amount", amount)
	}
	if err := l.debit(ctx, from, amount); err != nil {
		return err
	}
	return l.credit(ctx, to, amount.Value)
}

func (l *sqlLedger) Burn(ctx context.Context, from generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("burn %s: negative amount", amount)
	}
	if err := l.debit(ctx, from, amount); err != nil {
		return err
	}
	return l.adjustSupply(ctx, amount.Value.Neg())
}

func (l *sqlLedger) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("mint %s: negative amount", amount)
	}
	if err := l.credit(ctx, to, amount.Value); err != nil {
		return err
	}
	return l.adjustSupply(ctx, amount.Value)
}

func (l *sqlLedger) balance(ctx context.Context, account generic.Address) (decimal.Decimal, error) {
	var value string
	err := l.q.QueryRowContext(ctx, `SELECT value FROM balances WHERE account = ?`, account).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance of %s: %w", account, err)
	}
	return generic.MustParseDecimal(value), nil
}

func (l *sqlLedger) setBalance(ctx context.Context, account generic.Address, v decimal.Decimal) error {
	_, err := l.q.ExecContext(ctx, `
		INSERT INTO balances (account, value) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET value = excluded.value
	`, account, v.String())
	if err != nil {
		return fmt.Errorf("failed to write balance of %s: %w", account, err)
	}
	return nil
}

func (l *sqlLedger) debit(ctx context.Context, account generic.Address, amount generic.Amount) error {
	bal, err := l.balance(ctx, account)
	if err != nil {
		return err
	}
	if bal.LessThan(amount.Value) {
		return &generic.InsufficientBalanceError{
			Account:   account,
			Available: generic.NewAmount(bal, l.unit),
			Requested: amount,
		}
	}
	return l.setBalance(ctx, account, bal.Sub(amount.Value))
}

func (l *sqlLedger) credit(ctx context.Context, account generic.Address, v decimal.Decimal) error {
	bal, err := l.balance(ctx, account)
	if err != nil {
		return err
	}
	return l.setBalance(ctx, account, bal.Add(v))
}

func (l *sqlLedger) adjustSupply(ctx context.Context, delta decimal.Decimal) error {
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	_, err = l.q.ExecContext(ctx, `UPDATE token_supply SET value = ? WHERE id = 1`, supply.Value.Add(delta).String())
	if err != nil {
		return fmt.Errorf("failed to update supply: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"distributions", "processed_periods", "processor_state", "balances"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE token_supply SET value = '0' WHERE id = 1`)
	return err
}

// ListBalances returns every non-zero balance (for admin view).
func (s *Store) ListBalances(ctx context.Context) (map[generic.Address]generic.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT account, value FROM balances ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[generic.Address]generic.Amount)
	for rows.Next() {
		var account, value string
		if err := rows.Scan(&account, &value); err != nil {
			return nil, err
		}
		amt := parseAmount(value, string(s.unit))
		if !amt.IsZero() {
			result[generic.Address(account)] = amt
		}
	}
	return result, rows.Err()
}

// Helper functions

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
