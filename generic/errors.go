/*
errors.go - Centralized error types for the fee engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores, the API and the CLI wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - Rejected at construction, nothing is persisted
  2. Range errors - Timestamps or indices outside a calendar's domain
  3. Ledger errors - Token transfers / burns that failed; the trigger rolls back
  4. Authorization errors - Caller not permitted by the process policy

NOT AN ERROR:
  Calling Process too early (grace window, already processed) is a normal
  outcome and is reported through Outcome.Status.

USAGE:
    if errors.Is(err, generic.ErrInsufficientBalance) {
        // ledger refused the debit
    }

SEE ALSO:
  - processor.go: Returns ConfigurationError and LedgerError
  - calendar.go: Returns ErrOutOfRange
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration is the root of every construction-time rejection.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrBeforeFirstPeriod is returned when a processor is deployed while the
	// clock is still inside period 0; there is no previous period to mark.
	ErrBeforeFirstPeriod = errors.New("cannot deploy during the first period")

	// ErrOutOfRange is returned when a timestamp or index cannot be mapped by
	// the calendar (overflow, or past the calendar's supported range).
	ErrOutOfRange = errors.New("value out of calendar range")

	// ErrFutureTimestamp is returned by HoursSince when the reference is ahead of now.
	ErrFutureTimestamp = errors.New("timestamp is in the future")

	// ErrStaleTimestamp is returned by HoursSince when the reference is too old.
	ErrStaleTimestamp = errors.New("timestamp is too old")

	// ErrInvalidSchedule is returned for negative pools or inconsistent schedule constants.
	ErrInvalidSchedule = errors.New("invalid fee schedule")

	// ErrInsufficientBalance is returned when a transfer or burn exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrLedger is the root of every token ledger failure during processing.
	ErrLedger = errors.New("ledger operation failed")

	// ErrUnauthorized is returned when the process policy rejects the caller.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrStateNotFound is returned by stores that hold no processor state yet.
	ErrStateNotFound = errors.New("processor state not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError names the offending field.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error // optional more specific cause
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Account   Address
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %v, requested %v",
		e.Account, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// LedgerError reports which step of a finalization failed.
type LedgerError struct {
	Op     string // "balance", "transfer", "burn"
	Period PeriodIdx
	Err    error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed while finalizing period %d: %v", e.Op, e.Period, e.Err)
}

func (e *LedgerError) Unwrap() []error {
	return []error{ErrLedger, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrFutureTimestamp) ||
		errors.Is(err, ErrStaleTimestamp) ||
		errors.Is(err, ErrInsufficientBalance)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
