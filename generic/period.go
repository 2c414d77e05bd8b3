package generic

import "fmt"

// =============================================================================
// GREGORIAN CALENDAR
// =============================================================================

const (
	EpochYear      = 1970
	SecondsPerDay  = 86400
	SecondsPerHour = 3600

	// 400 Gregorian years always contain 146097 days.
	secondsPer400Years = 146097 * SecondsPerDay
)

// IsLeapYear reports whether year has 366 days.
func IsLeapYear(year uint64) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// YearSeconds returns the length of year in seconds.
func YearSeconds(year uint64) uint64 {
	if IsLeapYear(year) {
		return 366 * SecondsPerDay
	}
	return 365 * SecondsPerDay
}

// GregorianYear returns the calendar year (UTC) containing t.
// Whole 400-year eras are skipped before walking year lengths.
func GregorianYear(t Timestamp) uint64 {
	rest := uint64(t)
	year := uint64(EpochYear) + 400*(rest/secondsPer400Years)
	rest %= secondsPer400Years

	for {
		n := YearSeconds(year)
		if rest < n {
			return year
		}
		rest -= n
		year++
	}
}

// GregorianYearStart returns the first second of year (UTC). Years before
// the epoch return 0.
func GregorianYearStart(year uint64) Timestamp {
	if year <= EpochYear {
		return 0
	}
	eras := (year - EpochYear) / 400
	ts := eras * secondsPer400Years
	for y := uint64(EpochYear) + 400*eras; y < year; y++ {
		ts += YearSeconds(y)
	}
	return Timestamp(ts)
}

// =============================================================================
// HOUR-GRANULARITY HELPERS
// =============================================================================

// MaxHoursSince bounds how stale a reference timestamp may be.
const MaxHoursSince = 3

// HoursSince returns the whole hours between ref and now. It is a bounded
// staleness check: a future ref or one older than MaxHoursSince fails.
func HoursSince(ref, now Timestamp) (uint64, error) {
	if ref > now {
		return 0, fmt.Errorf("reference %d is after %d: %w", ref, now, ErrFutureTimestamp)
	}
	hours := uint64(now-ref) / SecondsPerHour
	if hours > MaxHoursSince {
		return 0, fmt.Errorf("%d hours elapsed, at most %d allowed: %w", hours, MaxHoursSince, ErrStaleTimestamp)
	}
	return hours, nil
}

// RatePerTimeUnits returns the hour-granularity rate multiplier. Period 0
// has no rate yet.
func RatePerTimeUnits(hours uint64, ref PeriodIdx) uint64 {
	if ref == 0 {
		return 0
	}
	return hours
}
