/*
calendar.go - Mapping wall-clock time to periods and cycles

PURPOSE:
  A PeriodCalendar turns a Unix timestamp into the coordinates the fee
  processor reasons about: which period we are in, when that period began,
  and which cycle ("year") encloses it. Every function is pure.

CALENDAR VARIANTS:
  One struct covers all deployments; only the parameters differ.

    Variant      Period            Cycle
    ---------    ---------------   --------------------------------
    weekly       168 units x 1h    Gregorian year (leap-year aware)
    fixed        10 units x 1s     every 5 periods
    no-cycle     10 units x 1s     constant (timing-insensitive tests)

TIME UNITS:
  UnitsPerPeriod and the processor's grace period are expressed in units;
  SecondsPerUnit converts units to seconds. A "week" is 168 hourly units.

EXAMPLE (weekly):
  PeriodIdx(1528283999)  = 2526
  PeriodStart(2527)      = 1528329600
  Cycle(1514764800)      = 2018

SEE ALSO:
  - period.go: Gregorian arithmetic and hour-granularity helpers
  - deployments/presets.go: Named calendars
*/
package generic

import (
	"fmt"
	"math"
)

// CycleMode selects how a calendar groups periods into cycles.
type CycleMode string

const (
	CycleFixed     CycleMode = "fixed"     // PeriodsPerCycle periods per cycle
	CycleGregorian CycleMode = "gregorian" // the calendar year of the timestamp
	CycleConstant  CycleMode = "constant"  // always ConstantCycle
)

// PeriodCalendar is the clock abstraction shared by every deployment.
type PeriodCalendar struct {
	Name           string
	UnitsPerPeriod uint64
	SecondsPerUnit uint64
	CycleMode      CycleMode

	// CycleFixed only.
	PeriodsPerCycle uint64

	// CycleConstant only.
	ConstantCycle CycleIdx

	// MaxTimestamp is the last timestamp the calendar can map. Zero means
	// unbounded.
	MaxTimestamp Timestamp
}

// Validate checks the calendar parameters for consistency and overflow.
func (c PeriodCalendar) Validate() error {
	if c.UnitsPerPeriod == 0 {
		return &ConfigurationError{Field: "units_per_period", Reason: "must be at least 1"}
	}
	if c.SecondsPerUnit == 0 {
		return &ConfigurationError{Field: "seconds_per_unit", Reason: "must be at least 1"}
	}
	if c.UnitsPerPeriod > math.MaxUint64/c.SecondsPerUnit {
		return &ConfigurationError{Field: "units_per_period", Reason: "period length overflows", Err: ErrOutOfRange}
	}

	switch c.CycleMode {
	case CycleFixed:
		if c.PeriodsPerCycle == 0 {
			return &ConfigurationError{Field: "periods_per_cycle", Reason: "must be at least 1 for a fixed cycle"}
		}
		if c.PeriodsPerCycle > math.MaxUint64/c.PeriodSeconds() {
			return &ConfigurationError{Field: "periods_per_cycle", Reason: "cycle length overflows", Err: ErrOutOfRange}
		}
	case CycleGregorian, CycleConstant:
	default:
		return &ConfigurationError{Field: "cycle_mode", Reason: fmt.Sprintf("unknown cycle mode %q", c.CycleMode)}
	}
	return nil
}

// PeriodSeconds is the length of one period in seconds.
func (c PeriodCalendar) PeriodSeconds() uint64 {
	return c.UnitsPerPeriod * c.SecondsPerUnit
}

// UnitsToSeconds converts a duration in calendar units to seconds.
func (c PeriodCalendar) UnitsToSeconds(units uint64) uint64 {
	return units * c.SecondsPerUnit
}

// =============================================================================
// PERIODS
// =============================================================================

// PeriodIdx returns the number of whole periods elapsed at t.
func (c PeriodCalendar) PeriodIdx(t Timestamp) PeriodIdx {
	return PeriodIdx(uint64(t) / c.PeriodSeconds())
}

// PeriodStart returns the first second of period idx.
func (c PeriodCalendar) PeriodStart(idx PeriodIdx) (Timestamp, error) {
	ps := c.PeriodSeconds()
	if uint64(idx) > math.MaxUint64/ps {
		return 0, fmt.Errorf("start of period %d: %w", idx, ErrOutOfRange)
	}
	start := Timestamp(uint64(idx) * ps)
	if c.MaxTimestamp != 0 && start > c.MaxTimestamp {
		return 0, fmt.Errorf("start of period %d is past %d: %w", idx, c.MaxTimestamp, ErrOutOfRange)
	}
	return start, nil
}

// ElapsedInPeriod returns the seconds elapsed since the start of the
// period containing t.
func (c PeriodCalendar) ElapsedInPeriod(t Timestamp) uint64 {
	return uint64(t) % c.PeriodSeconds()
}

// =============================================================================
// CYCLES
// =============================================================================

// Cycle returns the cycle index enclosing t.
func (c PeriodCalendar) Cycle(t Timestamp) (CycleIdx, error) {
	if c.MaxTimestamp != 0 && t > c.MaxTimestamp {
		return 0, fmt.Errorf("cycle of %d is past %d: %w", t, c.MaxTimestamp, ErrOutOfRange)
	}

	switch c.CycleMode {
	case CycleFixed:
		return CycleIdx(uint64(t) / (c.PeriodsPerCycle * c.PeriodSeconds())), nil
	case CycleGregorian:
		return CycleIdx(GregorianYear(t)), nil
	case CycleConstant:
		return c.ConstantCycle, nil
	default:
		return 0, fmt.Errorf("unknown cycle mode %q: %w", c.CycleMode, ErrConfiguration)
	}
}

// CycleOfPeriod returns the cycle enclosing the start of period idx.
func (c PeriodCalendar) CycleOfPeriod(idx PeriodIdx) (CycleIdx, error) {
	start, err := c.PeriodStart(idx)
	if err != nil {
		return 0, err
	}
	return c.Cycle(start)
}
