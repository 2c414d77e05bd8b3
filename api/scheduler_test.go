package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/generic"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	// GIVEN: A scheduler over a funded processor
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	ts.fund(t, "0xfee", "100000")
	sched := NewProcessScheduler(ts.proc, "0xscheduler", quietLogger())

	// WHEN: Polling inside the deployment period
	out, err := sched.RunNow(context.Background())

	// THEN: No-op
	require.NoError(t, err)
	assert.Equal(t, generic.OutcomeAlreadyProcessed, out.Status)

	// WHEN: Polling after the grace window
	ts.clock.Set(1015)
	out, err = sched.RunNow(context.Background())

	// THEN: The period is finalized under the scheduler's address
	require.NoError(t, err)
	require.Equal(t, generic.OutcomeFinalized, out.Status)
	assert.Equal(t, generic.Address("0xscheduler"), out.Distribution.Caller)

	stats := sched.Stats()
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Finalized)
	assert.Equal(t, 1, stats.NoOps)
	assert.Zero(t, stats.Failures)
}

func TestScheduler_CountsFailures(t *testing.T) {
	// GIVEN: An owner_only processor and a scheduler that is not the owner
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyOwnerOnly)
	sched := NewProcessScheduler(ts.proc, "0xstranger", quietLogger())

	_, err := sched.RunNow(context.Background())

	assert.ErrorIs(t, err, generic.ErrUnauthorized)
	assert.Equal(t, 1, sched.Stats().Failures)
	assert.Contains(t, sched.Stats().LastError, "not authorized")
}

func TestScheduler_StartStop(t *testing.T) {
	// GIVEN: A scheduler polling every few milliseconds
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	ts.clock.Set(1015)
	sched := NewProcessScheduler(ts.proc, "0xscheduler", quietLogger())
	sched.Interval = 5 * time.Millisecond

	// WHEN: Started
	sched.Start()

	// THEN: The first poll finalizes period 100 and later polls are no-ops
	assert.Eventually(t, func() bool { return sched.Stats().Runs >= 3 }, time.Second, 5*time.Millisecond)
	sched.Stop()

	stats := sched.Stats()
	assert.Equal(t, 1, stats.Finalized)
	assert.Equal(t, stats.Runs-1, stats.NoOps)

	last, err := ts.proc.LastPeriodExecIdx(context.Background())
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodIdx(100), last)

	// Stopping twice is harmless
	sched.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	sched := NewProcessScheduler(ts.proc, "0xscheduler", quietLogger())
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.Zero(t, sched.Stats().Runs)
}
