/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Process trigger, timing no-ops and the owner_only policy
- Processor, period, distribution and preview reads
- Clock and schedule queries
- Development token ledger routes
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
	"github.com/warp/fee-engine/generic/store"
)

type testServer struct {
	router http.Handler
	clock  *generic.ManualClock
	proc   *generic.FeeProcessor
	dep    *factory.Deployment
}

func newTestServer(t *testing.T, calendar string, deployAt generic.Timestamp, policy generic.ProcessPolicy) *testServer {
	t.Helper()

	dep, err := factory.NewDeploymentFactory().ParseDeployment(deployments.StandardJSON("api-test", calendar, deployments.Wallets{
		Operations: "0xops",
		Reward:     "0xreward",
		Processor:  "0xfee",
		Owner:      "0xowner",
	}))
	require.NoError(t, err)
	dep.Config.Policy = policy

	clock := generic.NewManualClock(deployAt)
	proc, err := generic.NewFeeProcessor(context.Background(), generic.ProcessorDeps{
		Calendar: dep.Calendar,
		Clock:    clock,
		Store:    store.NewTxMemory(nil, dep.Unit),
	}, dep.Config)
	require.NoError(t, err)

	return &testServer{
		router: NewRouter(NewHandler(proc, dep, clock)),
		clock:  clock,
		proc:   proc,
		dep:    dep,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, string) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func (ts *testServer) fund(t *testing.T, to, amount string) {
	t.Helper()
	code, body := ts.do(t, http.MethodPost, "/api/tokens/transfers", `{"to":"`+to+`","amount":"`+amount+`"}`, nil)
	require.Equal(t, http.StatusCreated, code, body)
}

// =============================================================================
// PROCESSING
// =============================================================================

func TestProcess_FinalizesAfterGrace(t *testing.T) {
	// GIVEN: A no-cycle processor deployed in period 100 with 100 000 tokens pooled
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	ts.fund(t, "0xfee", "100000")

	// WHEN: Processing inside period 100
	code, body := ts.do(t, http.MethodPost, "/api/process", "", nil)

	// THEN: Nothing to finalize yet
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "already_processed", gjson.Get(body, "status").String())
	assert.False(t, gjson.Get(body, "distribution").Exists())

	// WHEN: Processing two seconds into period 101 (grace is five)
	ts.clock.Set(1012)
	code, body = ts.do(t, http.MethodPost, "/api/process", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "within_grace", gjson.Get(body, "status").String())

	// WHEN: Processing once the grace window has passed
	ts.clock.Set(1015)
	code, body = ts.do(t, http.MethodPost, "/api/process", "", map[string]string{CallerHeader: "0xkeeper"})

	// THEN: Period 100 is finalized with the reference split
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "finalized", gjson.Get(body, "status").String())
	assert.Equal(t, int64(100), gjson.Get(body, "last_processed").Int())
	assert.Equal(t, "24000", gjson.Get(body, "distribution.split.wallet.tokens").String())
	assert.Equal(t, "70000", gjson.Get(body, "distribution.split.reward.tokens").String())
	assert.Equal(t, "6000", gjson.Get(body, "distribution.split.retained.tokens").String())
	assert.Equal(t, "24000000000000000000000", gjson.Get(body, "distribution.split.wallet.base_units").String())
	assert.False(t, gjson.Get(body, "distribution.burned").Bool())
	assert.Equal(t, "0xkeeper", gjson.Get(body, "distribution.caller").String())

	// THEN: Balances and supply reflect the transfers
	_, body = ts.do(t, http.MethodGet, "/api/tokens/balances/0xops", "", nil)
	assert.Equal(t, "24000", gjson.Get(body, "balance.tokens").String())
	_, body = ts.do(t, http.MethodGet, "/api/tokens/balances/0xreward", "", nil)
	assert.Equal(t, "70000", gjson.Get(body, "balance.tokens").String())
	_, body = ts.do(t, http.MethodGet, "/api/tokens/balances/0xfee", "", nil)
	assert.Equal(t, "6000", gjson.Get(body, "balance.tokens").String())
	_, body = ts.do(t, http.MethodGet, "/api/tokens/supply", "", nil)
	assert.Equal(t, "100000", gjson.Get(body, "tokens").String())

	// WHEN: Processing again in the same period
	code, body = ts.do(t, http.MethodPost, "/api/process", "", nil)

	// THEN: It is a no-op
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "already_processed", gjson.Get(body, "status").String())
}

func TestProcess_OwnerOnly(t *testing.T) {
	// GIVEN: An owner_only processor past the grace window of period 101
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyOwnerOnly)
	ts.clock.Set(1015)

	// WHEN: A stranger triggers processing
	code, body := ts.do(t, http.MethodPost, "/api/process", "", map[string]string{CallerHeader: "0xstranger"})

	// THEN: Rejected without side effects
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, gjson.Get(body, "details").String(), "not authorized")
	last, err := ts.proc.LastPeriodExecIdx(context.Background())
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodIdx(99), last)

	// WHEN: The owner triggers processing
	code, body = ts.do(t, http.MethodPost, "/api/process", "", map[string]string{CallerHeader: "0xowner"})

	// THEN: The empty pool is finalized
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "0", gjson.Get(body, "distribution.split.pool.tokens").String())
}

// =============================================================================
// READS
// =============================================================================

func TestGetProcessor(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)

	code, body := ts.do(t, http.MethodGet, "/api/processor", "", nil)

	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "0xowner", gjson.Get(body, "owner").String())
	assert.Equal(t, "0xfee", gjson.Get(body, "processor").String())
	assert.Equal(t, "no_cycle", gjson.Get(body, "calendar").String())
	assert.Equal(t, int64(99), gjson.Get(body, "last_period_exec_idx").Int())
	assert.Equal(t, int64(100), gjson.Get(body, "period_idx").Int())
	assert.Equal(t, int64(2018), gjson.Get(body, "year_idx").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "grace_period").Int())
}

func TestGetPeriod(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)

	_, body := ts.do(t, http.MethodGet, "/api/periods/99", "", nil)
	assert.True(t, gjson.Get(body, "processed").Bool())
	assert.Equal(t, int64(990), gjson.Get(body, "start").Int())

	_, body = ts.do(t, http.MethodGet, "/api/periods/100", "", nil)
	assert.False(t, gjson.Get(body, "processed").Bool())

	code, _ := ts.do(t, http.MethodGet, "/api/periods/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListDistributions(t *testing.T) {
	// GIVEN: Two finalizations
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	ts.fund(t, "0xfee", "20000")
	ts.clock.Set(1015)
	ts.do(t, http.MethodPost, "/api/process", "", nil)
	ts.fund(t, "0xfee", "48000")
	ts.clock.Set(1045)
	ts.do(t, http.MethodPost, "/api/process", "", nil)

	// WHEN: Listing distributions
	code, body := ts.do(t, http.MethodGet, "/api/distributions", "", nil)

	// THEN: Both are returned oldest first, the second one covering periods 101-103
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, int64(2), gjson.Get(body, "#").Int())
	assert.Equal(t, int64(100), gjson.Get(body, "0.period").Int())
	assert.Equal(t, "20000", gjson.Get(body, "0.split.wallet.tokens").String())
	assert.Equal(t, int64(101), gjson.Get(body, "1.from_period").Int())
	assert.Equal(t, int64(103), gjson.Get(body, "1.period").Int())
	assert.Equal(t, "24000", gjson.Get(body, "1.split.wallet.tokens").String())
	assert.Equal(t, "24000", gjson.Get(body, "1.split.reward.tokens").String())
	assert.Equal(t, "0", gjson.Get(body, "1.split.retained.tokens").String())
}

func TestGetPreview(t *testing.T) {
	// GIVEN: A fixed-cycle processor about to cross into cycle 21
	ts := newTestServer(t, deployments.CalendarFixed, 1030, generic.PolicyAnyone)
	ts.fund(t, "0xfee", "200000")

	_, body := ts.do(t, http.MethodGet, "/api/preview", "", nil)
	assert.Equal(t, "already_processed", gjson.Get(body, "status").String())
	assert.Equal(t, "0", gjson.Get(body, "split.pool.tokens").String())

	// WHEN: Previewing after period 104 and its grace window
	ts.clock.Set(1055)
	code, body := ts.do(t, http.MethodGet, "/api/preview", "", nil)

	// THEN: The split is reported and the retained share would burn
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "finalized", gjson.Get(body, "status").String())
	assert.Equal(t, int64(104), gjson.Get(body, "target").Int())
	assert.Equal(t, "40000", gjson.Get(body, "split.wallet.tokens").String())
	assert.Equal(t, "140000", gjson.Get(body, "split.reward.tokens").String())
	assert.Equal(t, "20000", gjson.Get(body, "split.retained.tokens").String())
	assert.True(t, gjson.Get(body, "burn").Bool())

	// THEN: Nothing moved
	_, body = ts.do(t, http.MethodGet, "/api/tokens/balances/0xfee", "", nil)
	assert.Equal(t, "200000", gjson.Get(body, "balance.tokens").String())
}

// =============================================================================
// CLOCK & SCHEDULE
// =============================================================================

func TestGetClock(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)

	_, body := ts.do(t, http.MethodGet, "/api/clock?ts=1015", "", nil)
	assert.Equal(t, int64(101), gjson.Get(body, "period_idx").Int())
	assert.Equal(t, int64(1010), gjson.Get(body, "period_start").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "elapsed_in_period").Int())
	assert.Equal(t, int64(2018), gjson.Get(body, "cycle").Int())

	// Defaults to the clock's time
	_, body = ts.do(t, http.MethodGet, "/api/clock", "", nil)
	assert.Equal(t, int64(1000), gjson.Get(body, "timestamp").Int())

	code, _ := ts.do(t, http.MethodGet, "/api/clock?ts=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetClock_WeeklyBounds(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarWeekly, 1700000000, generic.PolicyAnyone)

	_, body := ts.do(t, http.MethodGet, "/api/clock?ts=31536000", "", nil)
	assert.Equal(t, int64(1971), gjson.Get(body, "cycle").Int())
	assert.Equal(t, int64(52), gjson.Get(body, "period_idx").Int())

	_, body = ts.do(t, http.MethodGet, "/api/clock?ts=13601087999", "", nil)
	assert.Equal(t, int64(2400), gjson.Get(body, "cycle").Int())

	code, body := ts.do(t, http.MethodGet, "/api/clock?ts=13601088000", "", nil)
	assert.Equal(t, http.StatusBadRequest, code, body)
}

func TestGetSplit(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)

	vectors := []struct {
		amount, wallet, reward, retained string
	}{
		{"0", "0", "0", "0"},
		{"20000", "20000", "0", "0"},
		{"100000", "24000", "70000", "6000"},
		{"8000000", "1200000", "5600000", "1200000"},
	}
	for _, v := range vectors {
		code, body := ts.do(t, http.MethodGet, "/api/schedule/split?amount="+v.amount, "", nil)
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, v.wallet, gjson.Get(body, "wallet.tokens").String(), v.amount)
		assert.Equal(t, v.reward, gjson.Get(body, "reward.tokens").String(), v.amount)
		assert.Equal(t, v.retained, gjson.Get(body, "retained.tokens").String(), v.amount)
	}

	code, _ := ts.do(t, http.MethodGet, "/api/schedule/split?amount=lots", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/schedule/split?amount=-5", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// =============================================================================
// TOKENS
// =============================================================================

func TestCreateTransfer(t *testing.T) {
	ts := newTestServer(t, deployments.CalendarNoCycle, 1000, generic.PolicyAnyone)
	ts.fund(t, "0xpayer", "500")

	code, body := ts.do(t, http.MethodPost, "/api/tokens/transfers", `{"from":"0xpayer","to":"0xfee","amount":"120.5"}`, nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "120.5", gjson.Get(body, "balance.tokens").String())

	_, body = ts.do(t, http.MethodGet, "/api/tokens/balances/0xpayer", "", nil)
	assert.Equal(t, "379.5", gjson.Get(body, "balance.tokens").String())

	// Overdraft
	code, body = ts.do(t, http.MethodPost, "/api/tokens/transfers", `{"from":"0xpayer","to":"0xfee","amount":"1000"}`, nil)
	assert.Equal(t, http.StatusConflict, code, body)

	// Validation
	code, _ = ts.do(t, http.MethodPost, "/api/tokens/transfers", `{"to":"0xfee","amount":"0"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodPost, "/api/tokens/transfers", `{"amount":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodPost, "/api/tokens/transfers", `{bad`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
