package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fee-engine/generic"
	"github.com/warp/fee-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const unit generic.Unit = "NRG"

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:", unit)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func nrg(n int64) generic.Amount {
	return generic.NewAmountFromInt(n, unit)
}

func mint(t *testing.T, store *sqlite.Store, to generic.Address, n int64) {
	t.Helper()
	ml, ok := store.Ledger().(generic.MintableLedger)
	require.True(t, ok)
	require.NoError(t, ml.Mint(context.Background(), to, nrg(n)))
}

func balanceOf(t *testing.T, store *sqlite.Store, a generic.Address) generic.Amount {
	t.Helper()
	b, err := store.Ledger().BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return b
}

// =============================================================================
// PROCESSOR STATE
// =============================================================================

func TestStore_LoadState_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadState(context.Background(), "0xfee")
	assert.ErrorIs(t, err, generic.ErrStateNotFound)
}

func TestStore_SaveState_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, generic.NewProcessorState("0xfee", 99, 1005)))

	state, err := store.LoadState(ctx, "0xfee")
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodIdx(99), state.LastProcessed)
	assert.Equal(t, generic.Timestamp(1005), state.DeployedAt)
	assert.True(t, state.Processed[99])
	assert.False(t, state.Processed[98])
}

func TestStore_SaveState_NeverRegresses(t *testing.T) {
	// GIVEN: Period 101 recorded as processed
	store := newTestStore(t)
	ctx := context.Background()

	state := generic.NewProcessorState("0xfee", 99, 1005)
	state.LastProcessed = 101
	state.Processed[101] = true
	require.NoError(t, store.SaveState(ctx, state))

	// WHEN: A stale writer saves an older state without the marker
	require.NoError(t, store.SaveState(ctx, generic.NewProcessorState("0xfee", 99, 1005)))

	// THEN: LastProcessed and markers are kept
	got, err := store.LoadState(ctx, "0xfee")
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodIdx(101), got.LastProcessed)
	assert.True(t, got.Processed[101])
	assert.Equal(t, []generic.PeriodIdx{99, 101}, got.ProcessedPeriods())
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

func TestStore_Distributions_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := generic.Distribution{
		ID:         "d-1",
		FromPeriod: 100,
		Period:     101,
		Pool:       nrg(100000),
		Split:      generic.Split{Wallet: nrg(24000), Reward: nrg(70000), Retained: nrg(6000)},
		Burned:     true,
		FromCycle:  2018,
		ToCycle:    2019,
		Caller:     "0xowner",
		ExecutedAt: 1025,
	}
	require.NoError(t, store.AppendDistribution(ctx, "0xfee", d))

	got, err := store.ListDistributions(ctx, "0xfee")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d.ID, got[0].ID)
	assert.Equal(t, d.Period, got[0].Period)
	assert.Equal(t, uint64(2), got[0].PeriodsCovered())
	assert.True(t, got[0].Split.Reward.Equal(nrg(70000)))
	assert.True(t, got[0].Burned)
	assert.Equal(t, generic.CycleIdx(2019), got[0].ToCycle)

	other, err := store.ListDistributions(ctx, "0xother")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_Distributions_OnePerPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := generic.Distribution{ID: "d-1", FromPeriod: 5, Period: 5, Pool: nrg(0)}
	require.NoError(t, store.AppendDistribution(ctx, "0xfee", d))

	d.ID = "d-2"
	assert.Error(t, store.AppendDistribution(ctx, "0xfee", d))
}

// =============================================================================
// TOKEN LEDGER
// =============================================================================

func TestLedger_MintTransferBurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger := store.Ledger()

	mint(t, store, "0xa", 1000)
	require.NoError(t, ledger.Transfer(ctx, "0xa", "0xb", nrg(300)))
	require.NoError(t, ledger.Burn(ctx, "0xb", nrg(100)))

	assert.True(t, balanceOf(t, store, "0xa").Equal(nrg(700)))
	assert.True(t, balanceOf(t, store, "0xb").Equal(nrg(200)))
	assert.True(t, balanceOf(t, store, "0xnobody").IsZero())

	supply, err := ledger.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(nrg(900)))

	balances, err := store.ListBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, balances, 2)
}

func TestLedger_Overdraft_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mint(t, store, "0xa", 10)

	err := store.Ledger().Transfer(ctx, "0xa", "0xb", nrg(11))
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	var ib *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.True(t, ib.Available.Equal(nrg(10)))

	assert.ErrorIs(t, store.Ledger().Burn(ctx, "0xb", nrg(1)), generic.ErrInsufficientBalance)
}

func TestLedger_LargeBaseUnitAmounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	big := generic.NewAmount(decimal.RequireFromString("8000000000000000000000000"), unit)
	ml := store.Ledger().(generic.MintableLedger)
	require.NoError(t, ml.Mint(ctx, "0xa", big))

	got := balanceOf(t, store, "0xa")
	assert.Equal(t, "8000000000000000000000000", got.Value.String())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: Funds and a deployed state
	store := newTestStore(t)
	ctx := context.Background()
	mint(t, store, "0xfee", 1000)
	require.NoError(t, store.SaveState(ctx, generic.NewProcessorState("0xfee", 10, 100)))

	// WHEN: A transaction moves funds, advances state, then fails
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.Ledger().Transfer(ctx, "0xfee", "0xops", nrg(400)))
		require.NoError(t, tx.Ledger().Burn(ctx, "0xfee", nrg(100)))
		st, err := tx.LoadState(ctx, "0xfee")
		require.NoError(t, err)
		st.LastProcessed = 11
		st.Processed[11] = true
		require.NoError(t, tx.SaveState(ctx, st))
		require.NoError(t, tx.AppendDistribution(ctx, "0xfee", generic.Distribution{ID: "x", Period: 11, Pool: nrg(1000)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: Nothing is visible
	assert.True(t, balanceOf(t, store, "0xfee").Equal(nrg(1000)))
	assert.True(t, balanceOf(t, store, "0xops").IsZero())
	supply, _ := store.Ledger().TotalSupply(ctx)
	assert.True(t, supply.Equal(nrg(1000)))

	st, err := store.LoadState(ctx, "0xfee")
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodIdx(10), st.LastProcessed)
	assert.False(t, st.Processed[11])

	dists, err := store.ListDistributions(ctx, "0xfee")
	require.NoError(t, err)
	assert.Empty(t, dists)
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mint(t, store, "0xa", 5)
	require.NoError(t, store.SaveState(ctx, generic.NewProcessorState("0xfee", 1, 10)))

	require.NoError(t, store.Reset(ctx))

	_, err := store.LoadState(ctx, "0xfee")
	assert.ErrorIs(t, err, generic.ErrStateNotFound)
	supply, err := store.Ledger().TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.IsZero())
}
