/*
Package generic provides the core loyalty accrual engine.

PURPOSE:
  This package contains actor-agnostic types and algorithms for recomputing
  loyalty points. Whether the credited actor is an architecture office or an
  independent professional, the same engine turns an ordered stream of
  point-granting transactions into an audited, multiplier-weighted total.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: One point-granting event (purchase at a partner company)
  - AuditEntry: Per-transaction trace produced by a recomputation
  - AccrualResult: The per-actor output of a recomputation
  - Actor/Partner IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Purity: Recomputation is a function of its inputs (transactions + tier snapshot)
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing actors and partners
  4. Auditability: Every recomputation can emit a per-transaction trail

USAGE:
  tx := generic.Transaction{
      ID:         "tx-1",
      ActorID:    "42",
      PartnerID:  7,
      Timestamp:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
      GrossValue: generic.Value(1500),
  }

SEE ALSO:
  - engine.go: The recomputation algorithm
  - tier.go: Multiplier tier table
  - report.go: Ranking and grand totals across actors
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ActorID string
type TransactionID string

// PartnerID identifies the partner company behind a purchase.
// Zero is the "unknown partner" sentinel and is a valid value.
type PartnerID int64

const UnknownPartner PartnerID = 0

// =============================================================================
// TRANSACTION - One point-granting event
// =============================================================================

// Transaction is one point-granting event for a single actor.
//
// PartnerIsBuilder is captured from the partner company when the row is
// loaded and never dereferenced again during a run.
type Transaction struct {
	ID        TransactionID
	ActorID   ActorID
	ActorKind ActorKind
	PartnerID PartnerID
	Timestamp time.Time

	// GrossValue is the purchase amount. Null for purely manual grants.
	GrossValue       decimal.NullDecimal
	PartnerIsBuilder bool

	// Stored at creation time by the admission collaborator. The engine never
	// reads or overrides it; it only feeds the partner report.
	Points decimal.Decimal

	// Display-only fields carried into the audit trail.
	PartnerName string
	Note        string
}

// Value wraps a float as a non-null gross value. Convenient in tests and seeds.
func Value(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

// ValueFromString parses a gross value; an empty string yields a null value.
func ValueFromString(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// grossOrZero returns the gross value, treating null as zero.
func (t Transaction) grossOrZero() decimal.Decimal {
	if !t.GrossValue.Valid {
		return decimal.Zero
	}
	return t.GrossValue.Decimal
}

// =============================================================================
// AUDIT ENTRY - Per-transaction trace
// =============================================================================

type AuditEntry struct {
	TransactionID TransactionID
	Timestamp     time.Time
	PartnerID     PartnerID
	PartnerName   string
	Note          string
	OriginalValue decimal.Decimal
	AdjustedValue decimal.Decimal // rounded to 2 places
	BuilderRate   bool            // builder discount applied
}

// =============================================================================
// ACCRUAL RESULT - Per-actor output
// =============================================================================

type AccrualResult struct {
	// Sum of builder-discounted values, before multiplier weighting.
	TotalAdjustedValue decimal.Decimal
	// Multiplier-weighted value, carry-forward inclusive.
	TotalIndexedValue     decimal.Decimal
	TotalDistinctPartners int
	TotalPoints           int64
	TransactionCount      int

	Audit    []AuditEntry
	Warnings []DataIntegrityWarning
}

// IsEmpty reports whether the result was produced from zero transactions.
func (r AccrualResult) IsEmpty() bool { return r.TransactionCount == 0 }

// =============================================================================
// PERIOD - Inclusive report window
// =============================================================================

// Period is an inclusive report window. End is extended to the last instant
// of its day so that a report "until March 31" includes all of March 31.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period from two dates and validates it.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), end.Location()),
	}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if t is within [Start, End]. A zero bound is open.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	return p.End.IsZero() || !t.After(p.End)
}

// SpansYears reports whether the period crosses a calendar year boundary.
func (p Period) SpansYears() bool { return p.Start.Year() != p.End.Year() }

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// PreviousMonth returns the full calendar month before the one containing t.
func PreviousMonth(t time.Time) Period {
	firstOfThis := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	start := firstOfThis.AddDate(0, -1, 0)
	end := firstOfThis.Add(-time.Nanosecond)
	return Period{Start: start, End: end}
}
