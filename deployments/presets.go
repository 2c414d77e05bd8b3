/*
Package deployments provides named calendars and deployment definitions.

These presets mirror the configurations the engine is run with: the
production weekly calendar with Gregorian cycles, and two fast calendars
used for simulations and tests. Deployment presets are produced as JSON so
they go through the same factory path as hand-written definitions.

USAGE:
  import "github.com/warp/fee-engine/deployments"

  jsonStr := deployments.StandardJSON("nrg-weekly", deployments.CalendarWeekly, wallets)
  dep, err := factory.NewDeploymentFactory().ParseDeployment(jsonStr)
*/
package deployments

import (
	"encoding/json"

	"github.com/warp/fee-engine/generic"
)

// Calendar preset names, as used in deployment JSON.
const (
	CalendarWeekly  = "weekly"
	CalendarFixed   = "fixed"
	CalendarNoCycle = "no_cycle"
)

// LastSupportedYear bounds the weekly calendar.
const LastSupportedYear = 2400

// Weekly is the production calendar: 168 hourly units per period and the
// Gregorian year as cycle, valid through the end of LastSupportedYear.
func Weekly() generic.PeriodCalendar {
	return generic.PeriodCalendar{
		Name:           CalendarWeekly,
		UnitsPerPeriod: 168,
		SecondsPerUnit: generic.SecondsPerHour,
		CycleMode:      generic.CycleGregorian,
		MaxTimestamp:   generic.GregorianYearStart(LastSupportedYear+1) - 1,
	}
}

// FixedCycle uses 10-second periods grouped five to a cycle.
func FixedCycle() generic.PeriodCalendar {
	return generic.PeriodCalendar{
		Name:            CalendarFixed,
		UnitsPerPeriod:  10,
		SecondsPerUnit:  1,
		CycleMode:       generic.CycleFixed,
		PeriodsPerCycle: 5,
	}
}

// NoCycle uses 10-second periods and never rolls over.
func NoCycle() generic.PeriodCalendar {
	return generic.PeriodCalendar{
		Name:           CalendarNoCycle,
		UnitsPerPeriod: 10,
		SecondsPerUnit: 1,
		CycleMode:      generic.CycleConstant,
		ConstantCycle:  2018,
	}
}

// Calendar returns a preset by name.
func Calendar(name string) (generic.PeriodCalendar, bool) {
	switch name {
	case CalendarWeekly:
		return Weekly(), true
	case CalendarFixed:
		return FixedCycle(), true
	case CalendarNoCycle:
		return NoCycle(), true
	default:
		return generic.PeriodCalendar{}, false
	}
}

// =============================================================================
// DEPLOYMENT JSON
// =============================================================================

// Wallets are the addresses a deployment pays to and from.
type Wallets struct {
	Operations string
	Reward     string
	Processor  string
	Owner      string
}

// StandardJSON returns the production fee schedule (floor 24 000, 20%,
// cap 1 200 000, reward 70%) on an 18-decimal token.
func StandardJSON(id, calendar string, w Wallets) string {
	grace := 24
	if calendar != CalendarWeekly {
		grace = 5
	}
	dj := map[string]interface{}{
		"id":           id,
		"name":         "Standard fee schedule",
		"calendar":     map[string]interface{}{"preset": calendar},
		"grace_period": grace,
		"token": map[string]interface{}{
			"symbol":   "NRG",
			"decimals": 18,
		},
		"wallets": map[string]interface{}{
			"operations": w.Operations,
			"reward":     w.Reward,
			"processor":  w.Processor,
			"owner":      w.Owner,
		},
		"schedule": map[string]interface{}{
			"wallet_floor":   "24000",
			"wallet_percent": "20",
			"wallet_cap":     "1200000",
			"reward_percent": "70",
		},
		"policy": string(generic.PolicyAnyone),
	}
	b, _ := json.MarshalIndent(dj, "", "  ")
	return string(b)
}
