/*
errors.go - Centralized error types for the accrual engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapter and API packages wrap or match these errors.

ERROR CATEGORIES:
  1. PreconditionError    - Unsorted or cross-actor input. Programmer error,
                            fatal to the call, never retried.
  2. DataIntegrityWarning - Negative or null monetary values. Non-fatal,
                            the value accumulates as given.
  3. ConfigurationError   - Empty or malformed tier table. Non-fatal, the
                            engine falls back to multiplier 1.0 but the
                            caller must surface it.
  4. Collaborator errors  - Admission window, ownership, not-found.

USAGE:
  result, err := engine.Recompute(txs, tiers, opts)
  var pre *generic.PreconditionError
  if errors.As(err, &pre) {
      // caller delivered unsorted input
  }

SEE ALSO:
  - engine.go: Raises PreconditionError and DataIntegrityWarning
  - tier.go: Raises ConfigurationError
  - admission.go: Raises admission errors
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnsortedInput is returned when transactions are not ascending by timestamp.
	ErrUnsortedInput = errors.New("transactions not sorted by timestamp")

	// ErrMixedActors is returned when one run receives transactions of several actors.
	ErrMixedActors = errors.New("transactions belong to more than one actor")

	// ErrInvalidTierTable is the target of every ConfigurationError.
	ErrInvalidTierTable = errors.New("invalid multiplier tier table")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidValue is returned when a submitted gross value is not positive.
	ErrInvalidValue = errors.New("gross value must be positive")

	// ErrAdmissionClosed is returned when points are submitted after the cutoff day.
	ErrAdmissionClosed = errors.New("submission window closed for this month")

	// ErrEditWindowClosed is returned when a transaction is edited or deleted
	// on a day other than the one it was created.
	ErrEditWindowClosed = errors.New("transactions can only be changed on the day they were created")

	// ErrNotOwner is returned when a company changes a transaction it did not register.
	ErrNotOwner = errors.New("transaction belongs to another company")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrActorNotFound is returned when a referenced office/professional doesn't exist.
	ErrActorNotFound = errors.New("actor not found")

	// ErrPartnerNotFound is returned when a referenced company doesn't exist.
	ErrPartnerNotFound = errors.New("partner company not found")

	// ErrTierNotFound is returned when a referenced tier row doesn't exist.
	ErrTierNotFound = errors.New("multiplier tier not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PreconditionError reports input the engine refuses to process.
type PreconditionError struct {
	Index int // position of the offending transaction
	TxID  TransactionID
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed at transaction %d (%s): %v", e.Index, e.TxID, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// DataIntegrityWarning flags a value the engine accumulated without repair.
type DataIntegrityWarning struct {
	TxID  TransactionID
	Code  string // "null_value" or "negative_value"
	Value decimal.Decimal
	At    time.Time
}

func (w DataIntegrityWarning) String() string {
	return fmt.Sprintf("%s: transaction %s value %s", w.Code, w.TxID, w.Value.String())
}

const (
	WarnNullValue     = "null_value"
	WarnNegativeValue = "negative_value"
)

// ConfigurationError lists every problem found in a tier table.
type ConfigurationError struct {
	Version  string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tier table %q: %s", e.Version, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidTierTable }

// AdmissionError provides details about a rejected submission.
type AdmissionError struct {
	CutoffDay int
	Day       int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("points may be registered from day 1 to day %d of each month (today is day %d)",
		e.CutoffDay, e.Day)
}

func (e *AdmissionError) Unwrap() error { return ErrAdmissionClosed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrAdmissionClosed) ||
		errors.Is(err, ErrEditWindowClosed) ||
		errors.Is(err, ErrInvalidTierTable)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrActorNotFound) ||
		errors.Is(err, ErrPartnerNotFound) ||
		errors.Is(err, ErrTierNotFound)
}

// IsForbidden returns true if the caller may not touch the resource.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotOwner)
}
