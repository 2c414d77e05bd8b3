/*
scheduler.go - Automated process trigger

PURPOSE:
  The processor never acts on its own; some caller has to invoke Process
  after each period closes and its grace window passes. ProcessScheduler is
  that caller: it polls Process on a fixed interval and logs what happened.
  Early calls are harmless no-ops, so the interval only bounds how late a
  period can be finalized.

CONFIGURATION:
  - Interval: How often to poll (default: 1 minute)
  - Enabled: Whether the scheduler is active (default: true)
  - Caller: Address reported as the trigger (must be the owner under
    the owner_only policy)

USAGE:
  scheduler := NewProcessScheduler(proc, owner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Process endpoint (manual trigger)
  - generic/processor.go: FeeProcessor.Process
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/fee-engine/generic"
)

// ProcessScheduler calls FeeProcessor.Process periodically.
type ProcessScheduler struct {
	Processor *generic.FeeProcessor
	Caller    generic.Address
	Interval  time.Duration
	Enabled   bool
	Logger    *slog.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	statsMu sync.Mutex
	stats   SchedulerStats
}

// SchedulerStats counts poll results since start.
type SchedulerStats struct {
	Runs      int
	Finalized int
	NoOps     int
	Failures  int
	LastRun   time.Time
	LastError string
}

// NewProcessScheduler creates a new scheduler.
func NewProcessScheduler(proc *generic.FeeProcessor, caller generic.Address, logger *slog.Logger) *ProcessScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessScheduler{
		Processor: proc,
		Caller:    caller,
		Interval:  time.Minute,
		Enabled:   true,
		Logger:    logger,
		stop:      make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *ProcessScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Logger.Info("[Scheduler] Disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.Interval)
	ps.stop = make(chan bool)
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.Logger.Info("[Scheduler] Started", "interval", ps.Interval, "caller", string(ps.Caller))
}

// Stop stops the scheduler and waits for an in-flight poll to finish.
func (ps *ProcessScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Logger.Info("[Scheduler] Stopped")
	}
}

func (ps *ProcessScheduler) run(ticker *time.Ticker, stop <-chan bool) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			ps.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow polls once (for testing/admin).
func (ps *ProcessScheduler) RunNow(ctx context.Context) (generic.Outcome, error) {
	out, err := ps.Processor.Process(ctx, ps.Caller)

	ps.statsMu.Lock()
	defer ps.statsMu.Unlock()
	ps.stats.Runs++
	ps.stats.LastRun = time.Now()

	switch {
	case err != nil:
		ps.stats.Failures++
		ps.stats.LastError = err.Error()
		ps.Logger.Error("[Scheduler] Process failed", "error", err)
	case out.Status == generic.OutcomeFinalized:
		ps.stats.Finalized++
		d := out.Distribution
		ps.Logger.Info("[Scheduler] Finalized",
			"from_period", uint64(d.FromPeriod),
			"period", uint64(d.Period),
			"pool", d.Pool.Value.String(),
			"burned", d.Burned,
		)
	default:
		ps.stats.NoOps++
		ps.Logger.Debug("[Scheduler] Nothing to do", "status", string(out.Status), "current", uint64(out.CurrentPeriod))
	}
	return out, err
}

// Stats returns a copy of the poll counters.
func (ps *ProcessScheduler) Stats() SchedulerStats {
	ps.statsMu.Lock()
	defer ps.statsMu.Unlock()
	return ps.stats
}
