/*
Package generic provides the core fee-distribution engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms that turn a
  token pool accumulated between fixed time windows into a three-way split.
  Which token, which calendar and which wallets are deployment details; the
  engine only knows periods, cycles, amounts and addresses.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A token quantity in the token's base unit (e.g. 24000e18 wei)
  - Address: An account on the token ledger
  - Timestamp / PeriodIdx / CycleIdx: The time coordinates of the engine
  - Distribution: The audit record of one finalized period

DESIGN PRINCIPLES:
  1. Exactness: Uses decimal.Decimal; pools routinely exceed uint64 in wei
  2. Type Safety: Distinct types for periods, cycles and timestamps
  3. Re-derivable: Every decision is a function of stored state + "now"

USAGE:
  pool := generic.NewAmountFromInt(100000, "NRG")
  split, err := params.Split(pool)

SEE ALSO:
  - calendar.go: Period and cycle arithmetic
  - schedule.go: Floor / percentage / cap fee split
  - processor.go: The stateful trigger
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Token quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

// Unit is the token symbol an amount is denominated in.
type Unit string

func NewAmount(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Percent returns floor(a * pct / 100).
func (a Amount) Percent(pct decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(pct).Div(hundred).Floor(), Unit: a.Unit}
}

var hundred = decimal.NewFromInt(100)

// =============================================================================
// IDENTIFIERS & TIME COORDINATES
// =============================================================================

// Address identifies an account on the token ledger.
type Address string

type DistributionID string

// Timestamp is a Unix time in seconds.
type Timestamp uint64

// PeriodIdx counts whole periods elapsed since the Unix epoch.
type PeriodIdx uint64

// CycleIdx identifies the "year" enclosing a timestamp. Depending on the
// calendar it is a synthetic index, a Gregorian year, or a constant.
type CycleIdx uint64

func TimestampOf(t time.Time) Timestamp {
	if t.Unix() < 0 {
		return 0
	}
	return Timestamp(t.Unix())
}

func (ts Timestamp) Time() time.Time { return time.Unix(int64(ts), 0).UTC() }

// =============================================================================
// DISTRIBUTION - Audit record of one finalization
// =============================================================================

// Distribution records a single successful finalization. Skipped periods are
// consolidated into the finalization that follows them, so FromPeriod may be
// lower than Period.
type Distribution struct {
	ID         DistributionID
	FromPeriod PeriodIdx // first period covered (previous LastProcessed + 1)
	Period     PeriodIdx // the finalized target period
	Pool       Amount
	Split      Split
	Burned     bool // retained share destroyed on cycle rollover
	FromCycle  CycleIdx
	ToCycle    CycleIdx
	Caller     Address
	ExecutedAt Timestamp
}

// PeriodsCovered is the number of periods consolidated into this distribution.
func (d Distribution) PeriodsCovered() uint64 {
	return uint64(d.Period-d.FromPeriod) + 1
}
