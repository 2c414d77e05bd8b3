/*
store.go - Persistence interface for processor state and history

PURPOSE:
  Defines the interface between the fee processor and the database. The
  processor's state is tiny (last finalized period and the set of
  finalized periods) but every mutation must commit atomically together
  with the token movements it implies.

KEY INTERFACES:
  Store:   Processor state, distribution history and the token ledger
  TxStore: Runs a function in a single transaction (all-or-nothing)

STATE INVARIANTS:
  - LastProcessed only increases
  - Processed[p] is true only for periods explicitly finalized
  - Distributions are append-only

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - processor.go: The only writer of processor state
  - ledger.go: TokenLedger contract
*/
package generic

import (
	"context"
	"sort"
)

// =============================================================================
// PROCESSOR STATE
// =============================================================================

// ProcessorState is the persistent state of one processor, keyed by the
// processor's own ledger address.
type ProcessorState struct {
	Processor     Address
	LastProcessed PeriodIdx
	Processed     map[PeriodIdx]bool
	DeployedAt    Timestamp
}

func NewProcessorState(processor Address, last PeriodIdx, deployedAt Timestamp) ProcessorState {
	return ProcessorState{
		Processor:     processor,
		LastProcessed: last,
		Processed:     map[PeriodIdx]bool{last: true},
		DeployedAt:    deployedAt,
	}
}

// Clone returns a deep copy.
func (s ProcessorState) Clone() ProcessorState {
	out := s
	out.Processed = make(map[PeriodIdx]bool, len(s.Processed))
	for k, v := range s.Processed {
		out.Processed[k] = v
	}
	return out
}

// ProcessedPeriods returns the finalized periods in ascending order.
func (s ProcessorState) ProcessedPeriods() []PeriodIdx {
	out := make([]PeriodIdx, 0, len(s.Processed))
	for p, ok := range s.Processed {
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// STORE
// =============================================================================

// Store persists processor state and history.
type Store interface {
	// LoadState returns ErrStateNotFound if the processor was never deployed.
	LoadState(ctx context.Context, processor Address) (ProcessorState, error)

	// SaveState writes LastProcessed and any newly processed markers.
	// Markers are never removed.
	SaveState(ctx context.Context, state ProcessorState) error

	// AppendDistribution records one finalization. Append-only.
	AppendDistribution(ctx context.Context, processor Address, d Distribution) error

	// ListDistributions returns history ordered by period.
	ListDistributions(ctx context.Context, processor Address) ([]Distribution, error)

	// Ledger returns the token ledger bound to this store (and, inside
	// WithTx, to the transaction).
	Ledger() TokenLedger
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
