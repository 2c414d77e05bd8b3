package deployments_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/generic"
)

func TestPresets_Validate(t *testing.T) {
	for _, name := range []string{deployments.CalendarWeekly, deployments.CalendarFixed, deployments.CalendarNoCycle} {
		cal, ok := deployments.Calendar(name)
		require.True(t, ok, name)
		assert.NoError(t, cal.Validate(), name)
		assert.Equal(t, name, cal.Name)
	}

	_, ok := deployments.Calendar("monthly")
	assert.False(t, ok)
}

func TestWeekly_Limits(t *testing.T) {
	cal := deployments.Weekly()

	assert.Equal(t, uint64(604800), cal.PeriodSeconds())
	assert.Equal(t, generic.Timestamp(13601087999), cal.MaxTimestamp)

	year, err := cal.Cycle(cal.MaxTimestamp)
	require.NoError(t, err)
	assert.Equal(t, generic.CycleIdx(deployments.LastSupportedYear), year)
}

func TestFixedCycle_FivePeriodsPerCycle(t *testing.T) {
	cal := deployments.FixedCycle()

	for idx := generic.PeriodIdx(0); idx < 20; idx++ {
		c, err := cal.CycleOfPeriod(idx)
		require.NoError(t, err)
		assert.Equal(t, generic.CycleIdx(idx/5), c)
	}
}

func TestStandardJSON_IsValidJSON(t *testing.T) {
	var out map[string]any
	err := json.Unmarshal([]byte(deployments.StandardJSON("x", deployments.CalendarWeekly, deployments.Wallets{})), &out)
	require.NoError(t, err)
	assert.Equal(t, float64(24), out["grace_period"])
}
