/*
engine.go - Accrual recomputation engine

PURPOSE:
  Recomputes one actor's audited point total for a period from scratch.
  The engine is a pure function: same ordered input + same tier snapshot
  always yields the same AccrualResult. It performs no I/O, keeps no state
  between calls and has no suspension points.

ALGORITHM (single forward pass, O(n)):
  For each transaction, in timestamp order:
    1. Month rollover: when the month key changes, fold the month's indexed
       value into carry-forward and reset the monthly counters. This happens
       BEFORE the transaction's own contribution.
    2. Distinct partners: when the partner differs from the immediately
       preceding transaction's partner, bump the period and month counts.
       This is a last-seen comparison, not a set: A, B, A counts three.
    3. Builder discount: partner is a builder => value / 4.
    4. Accumulate the adjusted value (period total and month total).
    5. Multiplier: tier containing the CURRENT MONTH distinct count.
    6. Month indexed value = month adjusted total * multiplier. The whole
       month is re-weighted on every transaction, so a tier change mid-month
       retroactively applies to everything accrued so far that month.
  Then:
    indexed = carryForward + monthIndexed  (last month is never folded by the loop)
    points  = round(indexed / 100)          (half away from zero)

MONTH KEY:
  The legacy reports keyed months by calendar month number only, so January
  2025 and January 2026 collide. MonthKeyYearMonth (default) keys by
  (year, month); MonthKeyCalendarMonth reproduces the legacy behavior.
  Both are identical for periods inside one calendar year.

PRECONDITIONS:
  Transactions must belong to one actor and be sorted ascending by
  Timestamp (ties allowed). Violations return *PreconditionError.

SEE ALSO:
  - tier.go: Multiplier lookup and fallback
  - recompute.go: Fans the engine out across actors
  - report.go: Ranks and totals the per-actor results
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

var (
	builderDivisor = decimal.NewFromInt(4)
	pointDivisor   = decimal.NewFromInt(100)
)

// MoneyPlaces is the number of decimal places kept in monetary outputs.
const MoneyPlaces = 2

// =============================================================================
// MONTH KEY
// =============================================================================

type MonthKeyMode string

const (
	// MonthKeyYearMonth rolls over whenever (year, month) changes.
	MonthKeyYearMonth MonthKeyMode = "year_month"

	// MonthKeyCalendarMonth rolls over only when the month number (1-12)
	// changes, matching the legacy reports.
	MonthKeyCalendarMonth MonthKeyMode = "calendar_month"
)

// ParseMonthKeyMode maps a config string to a mode, defaulting to year_month.
func ParseMonthKeyMode(s string) MonthKeyMode {
	if MonthKeyMode(s) == MonthKeyCalendarMonth {
		return MonthKeyCalendarMonth
	}
	return MonthKeyYearMonth
}

// monthKey is comparable; zero means "no previous month".
type monthKey int

func (m MonthKeyMode) key(t time.Time) monthKey {
	if m == MonthKeyCalendarMonth {
		return monthKey(t.Month())
	}
	return monthKey(t.Year()*100 + int(t.Month()))
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the few knobs of a recomputation. The zero value is usable
// and uses MonthKeyYearMonth.
type Engine struct {
	MonthKey MonthKeyMode
}

// NewEngine creates an engine with the given month key mode.
func NewEngine(mode MonthKeyMode) *Engine {
	return &Engine{MonthKey: mode}
}

type RecomputeOptions struct {
	IncludeAudit bool
}

// accrualState is the per-actor, per-run running state. Never persisted.
type accrualState struct {
	prevMonth   monthKey
	prevPartner PartnerID
	started     bool

	monthDistinct  int
	periodDistinct int

	monthAdjusted  decimal.Decimal
	monthIndexed   decimal.Decimal
	carryForward   decimal.Decimal
	periodAdjusted decimal.Decimal
}

// Recompute runs the accrual algorithm over one actor's ordered transactions.
func (e *Engine) Recompute(txs []Transaction, tiers TierTable, opts RecomputeOptions) (AccrualResult, error) {
	if err := checkPreconditions(txs); err != nil {
		return AccrualResult{}, err
	}

	mode := e.monthKeyMode()
	result := AccrualResult{TransactionCount: len(txs)}
	if opts.IncludeAudit {
		result.Audit = make([]AuditEntry, 0, len(txs))
	}

	st := accrualState{
		monthAdjusted:  decimal.Zero,
		monthIndexed:   decimal.Zero,
		carryForward:   decimal.Zero,
		periodAdjusted: decimal.Zero,
	}

	for _, tx := range txs {
		current := mode.key(tx.Timestamp)

		// Month rollover
		if st.started && current != st.prevMonth {
			st.carryForward = st.carryForward.Add(st.monthIndexed)
			st.monthDistinct = 0
			st.monthAdjusted = decimal.Zero
			st.monthIndexed = decimal.Zero
		}
		st.prevMonth = current

		// Distinct partners, last-seen comparison. The first transaction is
		// compared against the zero sentinel, like the legacy reports.
		if tx.PartnerID != st.prevPartner {
			st.monthDistinct++
			st.periodDistinct++
		}
		st.prevPartner = tx.PartnerID
		st.started = true

		value := tx.grossOrZero()
		if w, ok := integrityWarning(tx); ok {
			result.Warnings = append(result.Warnings, w)
		}

		adjusted := value
		if tx.PartnerIsBuilder {
			adjusted = value.Div(builderDivisor)
		}

		st.periodAdjusted = st.periodAdjusted.Add(adjusted)
		st.monthAdjusted = st.monthAdjusted.Add(adjusted)

		multiplier := tiers.MultiplierFor(st.monthDistinct)
		st.monthIndexed = st.monthAdjusted.Mul(multiplier)

		if opts.IncludeAudit {
			result.Audit = append(result.Audit, AuditEntry{
				TransactionID: tx.ID,
				Timestamp:     tx.Timestamp,
				PartnerID:     tx.PartnerID,
				PartnerName:   tx.PartnerName,
				Note:          tx.Note,
				OriginalValue: value,
				AdjustedValue: adjusted.Round(MoneyPlaces),
				BuilderRate:   tx.PartnerIsBuilder,
			})
		}
	}

	indexed := st.carryForward.Add(st.monthIndexed)

	result.TotalAdjustedValue = st.periodAdjusted.Round(MoneyPlaces)
	result.TotalIndexedValue = indexed.Round(MoneyPlaces)
	result.TotalDistinctPartners = st.periodDistinct
	result.TotalPoints = PointsFromIndexed(indexed)
	return result, nil
}

func (e *Engine) monthKeyMode() MonthKeyMode {
	if e == nil || e.MonthKey == "" {
		return MonthKeyYearMonth
	}
	return e.MonthKey
}

// PointsFromIndexed converts an indexed value into whole points:
// round(indexed / 100), half away from zero.
func PointsFromIndexed(indexed decimal.Decimal) int64 {
	return indexed.Div(pointDivisor).Round(0).IntPart()
}

// =============================================================================
// PRECONDITIONS & WARNINGS
// =============================================================================

func checkPreconditions(txs []Transaction) error {
	var kind ActorKind
	for i, tx := range txs {
		if tx.ActorKind != nil {
			if kind != nil && tx.ActorKind.KindID() != kind.KindID() {
				return &PreconditionError{Index: i, TxID: tx.ID, Err: ErrMixedActors}
			}
			kind = tx.ActorKind
		}
		if i == 0 {
			continue
		}
		if tx.ActorID != txs[0].ActorID {
			return &PreconditionError{Index: i, TxID: tx.ID, Err: ErrMixedActors}
		}
		if tx.Timestamp.Before(txs[i-1].Timestamp) {
			return &PreconditionError{Index: i, TxID: tx.ID, Err: ErrUnsortedInput}
		}
	}
	return nil
}

func integrityWarning(tx Transaction) (DataIntegrityWarning, bool) {
	switch {
	case !tx.GrossValue.Valid:
		return DataIntegrityWarning{TxID: tx.ID, Code: WarnNullValue, Value: decimal.Zero, At: tx.Timestamp}, true
	case tx.GrossValue.Decimal.IsNegative():
		return DataIntegrityWarning{TxID: tx.ID, Code: WarnNegativeValue, Value: tx.GrossValue.Decimal, At: tx.Timestamp}, true
	}
	return DataIntegrityWarning{}, false
}
