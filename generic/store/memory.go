// Package store provides in-memory Store and TokenLedger implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/fee-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	states        map[generic.Address]generic.ProcessorState
	distributions map[generic.Address][]generic.Distribution
	ledger        generic.TokenLedger
}

// NewMemory returns a store backed by ledger. A nil ledger gets a fresh
// MemoryLedger denominated in unit.
func NewMemory(ledger generic.TokenLedger, unit generic.Unit) *Memory {
	if ledger == nil {
		ledger = NewMemoryLedger(unit)
	}
	return &Memory{
		states:        make(map[generic.Address]generic.ProcessorState),
		distributions: make(map[generic.Address][]generic.Distribution),
		ledger:        ledger,
	}
}

func (m *Memory) LoadState(_ context.Context, processor generic.Address) (generic.ProcessorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadStateLocked(processor)
}

func (m *Memory) loadStateLocked(processor generic.Address) (generic.ProcessorState, error) {
	s, ok := m.states[processor]
	if !ok {
		return generic.ProcessorState{}, fmt.Errorf("processor %s: %w", processor, generic.ErrStateNotFound)
	}
	return s.Clone(), nil
}

func (m *Memory) SaveState(_ context.Context, state generic.ProcessorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveStateLocked(state)
	return nil
}

// saveStateLocked merges markers; a marker once set is never cleared.
func (m *Memory) saveStateLocked(state generic.ProcessorState) {
	next := state.Clone()
	if prev, ok := m.states[state.Processor]; ok {
		for p, done := range prev.Processed {
			if done {
				next.Processed[p] = true
			}
		}
	}
	m.states[state.Processor] = next
}

func (m *Memory) AppendDistribution(_ context.Context, processor generic.Address, d generic.Distribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distributions[processor] = append(m.distributions[processor], d)
	return nil
}

func (m *Memory) ListDistributions(_ context.Context, processor generic.Address) ([]generic.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDistributionsLocked(processor), nil
}

func (m *Memory) listDistributionsLocked(processor generic.Address) []generic.Distribution {
	result := make([]generic.Distribution, len(m.distributions[processor]))
	copy(result, m.distributions[processor])
	return result
}

// Ledger returns a view that serializes ledger calls with transactions,
// so a rollback never discards a transfer made outside of it.
func (m *Memory) Ledger() generic.TokenLedger {
	return &lockedLedger{mu: &m.mu, inner: m.ledger}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support. It accepts any
// TokenLedger; see WithTx for how ledger effects are rolled back.
type TxMemory struct {
	*Memory
}

func NewTxMemory(ledger generic.TokenLedger, unit generic.Unit) *TxMemory {
	return &TxMemory{Memory: NewMemory(ledger, unit)}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// A MemoryLedger is snapshotted with the rest of the store. Any other ledger
// is journaled and the recorded effects are reversed, newest first.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}
	if _, ok := tm.ledger.(*MemoryLedger); !ok {
		view.journal = &journalLedger{inner: tm.ledger}
	}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		if view.journal != nil {
			if rerr := view.journal.rollback(ctx); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	states := make(map[generic.Address]generic.ProcessorState, len(tm.states))
	for k, v := range tm.states {
		states[k] = v.Clone()
	}
	dists := make(map[generic.Address][]generic.Distribution, len(tm.distributions))
	for k, v := range tm.distributions {
		dists[k] = append([]generic.Distribution{}, v...)
	}
	s := memorySnapshot{states: states, distributions: dists}
	if ml, ok := tm.ledger.(*MemoryLedger); ok {
		ls := ml.snapshot()
		s.ledger = &ls
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.states = s.states
	tm.distributions = s.distributions
	if ml, ok := tm.ledger.(*MemoryLedger); ok && s.ledger != nil {
		ml.restore(*s.ledger)
	}
}

type memorySnapshot struct {
	states        map[generic.Address]generic.ProcessorState
	distributions map[generic.Address][]generic.Distribution
	ledger        *ledgerSnapshot
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent  *TxMemory
	journal *journalLedger
}

func (tv *txMemoryView) LoadState(_ context.Context, processor generic.Address) (generic.ProcessorState, error) {
	return tv.parent.loadStateLocked(processor)
}

func (tv *txMemoryView) SaveState(_ context.Context, state generic.ProcessorState) error {
	tv.parent.saveStateLocked(state)
	return nil
}

func (tv *txMemoryView) AppendDistribution(_ context.Context, processor generic.Address, d generic.Distribution) error {
	tv.parent.distributions[processor] = append(tv.parent.distributions[processor], d)
	return nil
}

func (tv *txMemoryView) ListDistributions(_ context.Context, processor generic.Address) ([]generic.Distribution, error) {
	return tv.parent.listDistributionsLocked(processor), nil
}

func (tv *txMemoryView) Ledger() generic.TokenLedger {
	if tv.journal != nil {
		return tv.journal
	}
	return tv.parent.ledger
}

// =============================================================================
// JOURNAL LEDGER - Undo log for ledgers without a snapshot
// =============================================================================

// journalLedger records every applied debit and credit together with the
// call that reverses it.
type journalLedger struct {
	inner generic.TokenLedger
	undo  []func(context.Context) error
}

func (j *journalLedger) BalanceOf(ctx context.Context, account generic.Address) (generic.Amount, error) {
	return j.inner.BalanceOf(ctx, account)
}

func (j *journalLedger) TotalSupply(ctx context.Context) (generic.Amount, error) {
	return j.inner.TotalSupply(ctx)
}

func (j *journalLedger) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	if err := j.inner.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.inner.Transfer(ctx, to, from, amount)
	})
	return nil
}

// Burn can only be reversed on a ledger that mints.
func (j *journalLedger) Burn(ctx context.Context, from generic.Address, amount generic.Amount) error {
	if err := j.inner.Burn(ctx, from, amount); err != nil {
		return err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		ml, ok := j.inner.(generic.MintableLedger)
		if !ok {
			return fmt.Errorf("ledger %T cannot restore %s burned from %s", j.inner, amount, from)
		}
		return ml.Mint(ctx, from, amount)
	})
	return nil
}

func (j *journalLedger) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	ml, ok := j.inner.(generic.MintableLedger)
	if !ok {
		return fmt.Errorf("ledger %T cannot mint", j.inner)
	}
	if err := ml.Mint(ctx, to, amount); err != nil {
		return err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.inner.Burn(ctx, to, amount)
	})
	return nil
}

// rollback runs the undo log newest first. It keeps going past a failed
// step and reports every failure.
func (j *journalLedger) rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](ctx); err != nil {
			errs = append(errs, fmt.Errorf("ledger rollback: %w", err))
		}
	}
	j.undo = nil
	return errors.Join(errs...)
}

// =============================================================================
// LOCKED LEDGER - Store-serialized access outside of WithTx
// =============================================================================

type lockedLedger struct {
	mu    *sync.RWMutex
	inner generic.TokenLedger
}

func (l *lockedLedger) BalanceOf(ctx context.Context, account generic.Address) (generic.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.BalanceOf(ctx, account)
}

func (l *lockedLedger) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Transfer(ctx, from, to, amount)
}

func (l *lockedLedger) TotalSupply(ctx context.Context) (generic.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.TotalSupply(ctx)
}

func (l *lockedLedger) Burn(ctx context.Context, from generic.Address, amount generic.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Burn(ctx, from, amount)
}

func (l *lockedLedger) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	ml, ok := l.inner.(generic.MintableLedger)
	if !ok {
		return fmt.Errorf("ledger %T cannot mint", l.inner)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return ml.Mint(ctx, to, amount)
}

// =============================================================================
// MEMORY LEDGER - Token balances in a map
// =============================================================================

type MemoryLedger struct {
	mu       sync.RWMutex
	unit     generic.Unit
	balances map[generic.Address]decimal.Decimal
	supply   decimal.Decimal
}

func NewMemoryLedger(unit generic.Unit) *MemoryLedger {
	return &MemoryLedger{
		unit:     unit,
		balances: make(map[generic.Address]decimal.Decimal),
		supply:   decimal.Zero,
	}
}

func (l *MemoryLedger) BalanceOf(_ context.Context, account generic.Address) (generic.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return generic.NewAmount(l.balances[account], l.unit), nil
}

func (l *MemoryLedger) TotalSupply(_ context.Context) (generic.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return generic.NewAmount(l.supply, l.unit), nil
}

func (l *MemoryLedger) Mint(_ context.Context, to generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("mint %s: negative amount", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = l.balances[to].Add(amount.Value)
	l.supply = l.supply.Add(amount.Value)
	return nil
}

func (l *MemoryLedger) Transfer(_ context.Context, from, to generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer %s: negative amount", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debitLocked(from, amount); err != nil {
		return err
	}
	l.balances[to] = l.balances[to].Add(amount.Value)
	return nil
}

func (l *MemoryLedger) Burn(_ context.Context, from generic.Address, amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("burn %s: negative amount", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debitLocked(from, amount); err != nil {
		return err
	}
	l.supply = l.supply.Sub(amount.Value)
	return nil
}

func (l *MemoryLedger) debitLocked(from generic.Address, amount generic.Amount) error {
	bal := l.balances[from]
	if bal.LessThan(amount.Value) {
		return &generic.InsufficientBalanceError{
			Account:   from,
			Available: generic.NewAmount(bal, l.unit),
			Requested: amount,
		}
	}
	l.balances[from] = bal.Sub(amount.Value)
	return nil
}

type ledgerSnapshot struct {
	balances map[generic.Address]decimal.Decimal
	supply   decimal.Decimal
}

func (l *MemoryLedger) snapshot() ledgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b := make(map[generic.Address]decimal.Decimal, len(l.balances))
	for k, v := range l.balances {
		b[k] = v
	}
	return ledgerSnapshot{balances: b, supply: l.supply}
}

func (l *MemoryLedger) restore(s ledgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = s.balances
	l.supply = s.supply
}
