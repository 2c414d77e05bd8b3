/*
processor.go - The periodic fee processor state machine

PURPOSE:
  FeeProcessor finalizes elapsed periods. Each successful Process call
  takes whatever the processor's own account holds, splits it with the
  fee schedule, pays the operations and reward wallets, and either leaves
  the retained share in place or burns it when a new cycle begins.

STATE MACHINE:
  State is {LastProcessed, Processed[]} and lives in the Store.

    now in period C, target T = C-1

    T <= LastProcessed          -> AlreadyProcessed (no-op)
    now - start(C) < grace      -> WithinGrace      (no-op)
    otherwise                   -> Finalized:
        pool  = BalanceOf(self)
        split = schedule.Split(pool)
        pay wallet, pay reward
        burn retained if cycle(start(LastProcessed+1)) != cycle(start(C))
        LastProcessed = T, Processed[T] = true

  Missed periods are never split on their own. If nobody calls Process for
  three periods, the next call finalizes only the latest elapsed period and
  the pool it splits contains everything that arrived in between.

ATOMICITY:
  Every call runs inside TxStore.WithTx. A failed transfer or burn returns
  a LedgerError and leaves balances, state and history untouched.

NO-OPS ARE NOT ERRORS:
  Calling too early is normal. Callers poll (see api/scheduler.go) and
  inspect Outcome.Status.

SEE ALSO:
  - calendar.go: Period and cycle arithmetic
  - schedule.go: The split
  - store.go: State persistence
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rs/xid"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// ProcessPolicy decides who may trigger a finalization.
type ProcessPolicy string

const (
	PolicyAnyone    ProcessPolicy = "anyone"
	PolicyOwnerOnly ProcessPolicy = "owner_only"
)

// ProcessorConfig holds the immutable construction parameters.
type ProcessorConfig struct {
	// GracePeriod is in calendar units and must satisfy
	// 0 < GracePeriod < UnitsPerPeriod.
	GracePeriod uint64

	OperationsWallet Address
	RewardWallet     Address
	Self             Address // the account holding the pool
	Owner            Address // the deployer
	Policy           ProcessPolicy
	Schedule         ScheduleParameters
}

// ProcessorDeps are the collaborators injected into a processor.
type ProcessorDeps struct {
	Calendar PeriodCalendar
	Clock    Clock
	Store    TxStore
	Logger   *slog.Logger
}

func (c ProcessorConfig) validate(cal PeriodCalendar) error {
	if c.GracePeriod == 0 || c.GracePeriod >= cal.UnitsPerPeriod {
		return &ConfigurationError{
			Field:  "grace_period",
			Reason: fmt.Sprintf("%d must be greater than 0 and less than %d", c.GracePeriod, cal.UnitsPerPeriod),
		}
	}
	if c.Self == "" {
		return &ConfigurationError{Field: "self", Reason: "processor account is required"}
	}
	if c.OperationsWallet == "" {
		return &ConfigurationError{Field: "operations_wallet", Reason: "address is required"}
	}
	if c.RewardWallet == "" {
		return &ConfigurationError{Field: "reward_wallet", Reason: "address is required"}
	}
	if c.Owner == "" {
		return &ConfigurationError{Field: "owner", Reason: "address is required"}
	}
	switch c.Policy {
	case PolicyAnyone, PolicyOwnerOnly:
	default:
		return &ConfigurationError{Field: "policy", Reason: fmt.Sprintf("unknown process policy %q", c.Policy)}
	}
	if err := c.Schedule.Validate(); err != nil {
		return &ConfigurationError{Field: "schedule", Reason: err.Error(), Err: err}
	}
	return nil
}

// =============================================================================
// OUTCOME
// =============================================================================

type OutcomeStatus string

const (
	OutcomeFinalized        OutcomeStatus = "finalized"
	OutcomeAlreadyProcessed OutcomeStatus = "already_processed"
	OutcomeWithinGrace      OutcomeStatus = "within_grace"
)

// Outcome reports what a Process call did. Distribution is set only when
// Status is OutcomeFinalized.
type Outcome struct {
	Status        OutcomeStatus
	CurrentPeriod PeriodIdx
	LastProcessed PeriodIdx
	Distribution  *Distribution
}

// Preview is what Process would do if called now.
type Preview struct {
	Status        OutcomeStatus
	CurrentPeriod PeriodIdx
	Target        PeriodIdx
	LastProcessed PeriodIdx
	Pool          Amount
	Split         Split
	Burn          bool
	FromCycle     CycleIdx
	ToCycle       CycleIdx
	// GraceEndsAt is when the target becomes finalizable.
	GraceEndsAt Timestamp
}

// =============================================================================
// FEE PROCESSOR
// =============================================================================

type FeeProcessor struct {
	cal   PeriodCalendar
	clock Clock
	store TxStore
	log   *slog.Logger
	cfg   ProcessorConfig
}

// NewFeeProcessor validates the configuration and deploys the processor.
// If the store already holds state for cfg.Self it is resumed; otherwise
// the period before the current one is recorded as processed.
func NewFeeProcessor(ctx context.Context, deps ProcessorDeps, cfg ProcessorConfig) (*FeeProcessor, error) {
	if deps.Store == nil {
		return nil, &ConfigurationError{Field: "store", Reason: "store is required"}
	}
	if deps.Clock == nil {
		return nil, &ConfigurationError{Field: "clock", Reason: "clock is required"}
	}
	if err := deps.Calendar.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAnyone
	}
	if err := cfg.validate(deps.Calendar); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &FeeProcessor{
		cal:   deps.Calendar,
		clock: deps.Clock,
		store: deps.Store,
		log:   logger.With("processor", string(cfg.Self)),
		cfg:   cfg,
	}

	err := p.store.WithTx(ctx, func(tx Store) error {
		state, err := tx.LoadState(ctx, cfg.Self)
		if err == nil {
			p.log.Info("resumed processor", "last_processed", state.LastProcessed)
			return nil
		}
		if !errors.Is(err, ErrStateNotFound) {
			return fmt.Errorf("load processor state: %w", err)
		}

		now := Now(p.clock)
		current := p.cal.PeriodIdx(now)
		if current == 0 {
			return &ConfigurationError{Field: "clock", Reason: "no previous period to mark processed", Err: ErrBeforeFirstPeriod}
		}
		if err := tx.SaveState(ctx, NewProcessorState(cfg.Self, current-1, now)); err != nil {
			return fmt.Errorf("save initial state: %w", err)
		}
		p.log.Info("deployed processor", "period", current, "last_processed", current-1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Process finalizes the most recently elapsed period if the timing policy
// allows it. Early calls return a no-op Outcome and a nil error.
func (p *FeeProcessor) Process(ctx context.Context, caller Address) (Outcome, error) {
	if p.cfg.Policy == PolicyOwnerOnly && caller != p.cfg.Owner {
		return Outcome{}, fmt.Errorf("%s may not trigger processing: %w", caller, ErrUnauthorized)
	}

	var out Outcome
	err := p.store.WithTx(ctx, func(tx Store) error {
		now := Now(p.clock)
		plan, state, err := p.plan(ctx, tx, now)
		if err != nil {
			return err
		}
		out = Outcome{Status: plan.Status, CurrentPeriod: plan.CurrentPeriod, LastProcessed: state.LastProcessed}
		if plan.Status != OutcomeFinalized {
			p.log.Debug("process no-op", "status", plan.Status, "current", plan.CurrentPeriod, "last_processed", state.LastProcessed)
			return nil
		}

		d, err := p.execute(ctx, tx, state, plan, caller, now)
		if err != nil {
			return err
		}
		out.LastProcessed = d.Period
		out.Distribution = &d
		return nil
	})
	if err != nil {
		p.log.Error("process failed", "caller", string(caller), "error", err)
		return Outcome{}, err
	}
	return out, nil
}

// plan decides what a call at now would do, reading but never writing.
func (p *FeeProcessor) plan(ctx context.Context, s Store, now Timestamp) (Preview, ProcessorState, error) {
	state, err := s.LoadState(ctx, p.cfg.Self)
	if err != nil {
		return Preview{}, ProcessorState{}, fmt.Errorf("load processor state: %w", err)
	}

	current := p.cal.PeriodIdx(now)
	pv := Preview{CurrentPeriod: current, LastProcessed: state.LastProcessed}

	if current == 0 || current-1 <= state.LastProcessed {
		pv.Status = OutcomeAlreadyProcessed
		return pv, state, nil
	}
	pv.Target = current - 1

	start, err := p.cal.PeriodStart(current)
	if err != nil {
		return Preview{}, ProcessorState{}, err
	}
	grace := p.cal.UnitsToSeconds(p.cfg.GracePeriod)
	pv.GraceEndsAt = start + Timestamp(grace)
	if uint64(now-start) < grace {
		pv.Status = OutcomeWithinGrace
		return pv, state, nil
	}

	pool, err := s.Ledger().BalanceOf(ctx, p.cfg.Self)
	if err != nil {
		return Preview{}, ProcessorState{}, &LedgerError{Op: "balance", Period: pv.Target, Err: err}
	}
	split, err := p.cfg.Schedule.Split(pool)
	if err != nil {
		return Preview{}, ProcessorState{}, fmt.Errorf("split pool %s: %w", pool, err)
	}

	// The cycle is compared from the first period this call covers so a
	// rollover inside a skipped stretch still burns.
	fromCycle, err := p.cal.CycleOfPeriod(state.LastProcessed + 1)
	if err != nil {
		return Preview{}, ProcessorState{}, err
	}
	toCycle, err := p.cal.CycleOfPeriod(current)
	if err != nil {
		return Preview{}, ProcessorState{}, err
	}

	pv.Status = OutcomeFinalized
	pv.Pool = pool
	pv.Split = split
	pv.FromCycle = fromCycle
	pv.ToCycle = toCycle
	pv.Burn = fromCycle != toCycle
	return pv, state, nil
}

func (p *FeeProcessor) execute(ctx context.Context, tx Store, state ProcessorState, plan Preview, caller Address, now Timestamp) (Distribution, error) {
	ledger := tx.Ledger()

	if plan.Split.Wallet.IsPositive() {
		if err := ledger.Transfer(ctx, p.cfg.Self, p.cfg.OperationsWallet, plan.Split.Wallet); err != nil {
			return Distribution{}, &LedgerError{Op: "transfer", Period: plan.Target, Err: err}
		}
	}
	if plan.Split.Reward.IsPositive() {
		if err := ledger.Transfer(ctx, p.cfg.Self, p.cfg.RewardWallet, plan.Split.Reward); err != nil {
			return Distribution{}, &LedgerError{Op: "transfer", Period: plan.Target, Err: err}
		}
	}
	if plan.Burn && plan.Split.Retained.IsPositive() {
		if err := ledger.Burn(ctx, p.cfg.Self, plan.Split.Retained); err != nil {
			return Distribution{}, &LedgerError{Op: "burn", Period: plan.Target, Err: err}
		}
	}

	from := state.LastProcessed + 1
	next := state.Clone()
	next.LastProcessed = plan.Target
	next.Processed[plan.Target] = true
	if err := tx.SaveState(ctx, next); err != nil {
		return Distribution{}, fmt.Errorf("save state: %w", err)
	}

	d := Distribution{
		ID:         DistributionID(xid.New().String()),
		FromPeriod: from,
		Period:     plan.Target,
		Pool:       plan.Pool,
		Split:      plan.Split,
		Burned:     plan.Burn,
		FromCycle:  plan.FromCycle,
		ToCycle:    plan.ToCycle,
		Caller:     caller,
		ExecutedAt: now,
	}
	if err := tx.AppendDistribution(ctx, p.cfg.Self, d); err != nil {
		return Distribution{}, fmt.Errorf("append distribution: %w", err)
	}

	p.log.Info("finalized period",
		"period", d.Period,
		"covered", d.PeriodsCovered(),
		"pool", d.Pool.Value.String(),
		"wallet", d.Split.Wallet.Value.String(),
		"reward", d.Split.Reward.Value.String(),
		"retained", d.Split.Retained.Value.String(),
		"burned", d.Burned,
	)
	return d, nil
}

// =============================================================================
// READS
// =============================================================================

// Preview reports what Process would do right now without changing anything.
func (p *FeeProcessor) Preview(ctx context.Context) (Preview, error) {
	pv, _, err := p.plan(ctx, p.store, Now(p.clock))
	return pv, err
}

func (p *FeeProcessor) LastPeriodExecIdx(ctx context.Context) (PeriodIdx, error) {
	state, err := p.store.LoadState(ctx, p.cfg.Self)
	if err != nil {
		return 0, err
	}
	return state.LastProcessed, nil
}

// WeekProcessed reports whether period idx was explicitly finalized.
// Periods consolidated into a later finalization report false.
func (p *FeeProcessor) WeekProcessed(ctx context.Context, idx PeriodIdx) (bool, error) {
	state, err := p.store.LoadState(ctx, p.cfg.Self)
	if err != nil {
		return false, err
	}
	return state.Processed[idx], nil
}

// PeriodIdx is the period containing the clock's current time.
func (p *FeeProcessor) PeriodIdx() PeriodIdx {
	return p.cal.PeriodIdx(Now(p.clock))
}

// YearIdx is the cycle containing the clock's current time.
func (p *FeeProcessor) YearIdx() (CycleIdx, error) {
	return p.cal.Cycle(Now(p.clock))
}

func (p *FeeProcessor) Owner() Address           { return p.cfg.Owner }
func (p *FeeProcessor) Config() ProcessorConfig  { return p.cfg }
func (p *FeeProcessor) Calendar() PeriodCalendar { return p.cal }
func (p *FeeProcessor) Ledger() TokenLedger      { return p.store.Ledger() }

func (p *FeeProcessor) State(ctx context.Context) (ProcessorState, error) {
	return p.store.LoadState(ctx, p.cfg.Self)
}

func (p *FeeProcessor) Distributions(ctx context.Context) ([]Distribution, error) {
	return p.store.ListDistributions(ctx, p.cfg.Self)
}
