/*
admission.go - Transaction-creation validator

PURPOSE:
  The collaborator that stands in front of the transaction store. The
  engine itself never enforces deadlines; this is where a submission is
  admitted (or not) and where its stored point value is computed.

RULES:
  - Partner companies may register points from day 1 up to the cutoff day
    of each month (setting "points_cutoff_day", default 10).
  - Gross value must be strictly positive.
  - Initial points = ComputePoints(value, registering company is builder).
  - A transaction may only be edited or deleted by the company that
    registered it, and only on the calendar day it was registered.

SEE ALSO:
  - calculator.go: ComputePoints
  - store/sqlite: Persists admitted transactions and the change log
*/
package generic

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCutoffDay = 10
	MinCutoffDay     = 1
	MaxCutoffDay     = 31

	// SettingCutoffDay is the settings key holding the cutoff day.
	SettingCutoffDay = "points_cutoff_day"
)

// =============================================================================
// ADMISSION WINDOW
// =============================================================================

type AdmissionWindow struct {
	CutoffDay int
}

// NewAdmissionWindow clamps invalid cutoffs to the default.
func NewAdmissionWindow(cutoffDay int) AdmissionWindow {
	if cutoffDay < MinCutoffDay || cutoffDay > MaxCutoffDay {
		cutoffDay = DefaultCutoffDay
	}
	return AdmissionWindow{CutoffDay: cutoffDay}
}

// Admit returns an *AdmissionError when now is past the cutoff day.
func (w AdmissionWindow) Admit(now time.Time) error {
	cutoff := w.CutoffDay
	if cutoff == 0 {
		cutoff = DefaultCutoffDay
	}
	if now.Day() > cutoff {
		return &AdmissionError{CutoffDay: cutoff, Day: now.Day()}
	}
	return nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// Submission is a partner company registering a purchase for an actor.
type Submission struct {
	CompanyID        PartnerID
	CompanyName      string
	CompanyIsBuilder bool
	ActorID          ActorID
	ActorKind        ActorKind
	GrossValue       decimal.Decimal
	Note             string
}

// AdmitSubmission validates a submission and builds the transaction to persist.
// The caller assigns the ID.
func (w AdmissionWindow) AdmitSubmission(sub Submission, now time.Time) (Transaction, error) {
	if err := w.Admit(now); err != nil {
		return Transaction{}, err
	}
	if !sub.GrossValue.IsPositive() {
		return Transaction{}, ErrInvalidValue
	}
	return Transaction{
		ActorID:          sub.ActorID,
		ActorKind:        sub.ActorKind,
		PartnerID:        sub.CompanyID,
		PartnerName:      sub.CompanyName,
		PartnerIsBuilder: sub.CompanyIsBuilder,
		Timestamp:        now,
		GrossValue:       decimal.NullDecimal{Decimal: sub.GrossValue, Valid: true},
		Points:           ComputePoints(sub.GrossValue, sub.CompanyIsBuilder),
		Note:             sub.Note,
	}, nil
}

// CheckEditable enforces ownership and the same-day rule for edits/deletes.
func CheckEditable(existing Transaction, caller PartnerID, now time.Time) error {
	if existing.PartnerID != caller {
		return ErrNotOwner
	}
	if !SameDay(existing.Timestamp, now) {
		return ErrEditWindowClosed
	}
	return nil
}

// ApplyEdit revalidates an edited submission against the existing row.
// The timestamp is kept; value, actor and note are replaced and points
// recomputed.
func ApplyEdit(existing Transaction, sub Submission, now time.Time) (Transaction, error) {
	if err := CheckEditable(existing, sub.CompanyID, now); err != nil {
		return Transaction{}, err
	}
	if !sub.GrossValue.IsPositive() {
		return Transaction{}, ErrInvalidValue
	}
	updated := existing
	updated.ActorID = sub.ActorID
	if sub.ActorKind != nil {
		updated.ActorKind = sub.ActorKind
	}
	updated.GrossValue = decimal.NullDecimal{Decimal: sub.GrossValue, Valid: true}
	updated.Points = ComputePoints(sub.GrossValue, sub.CompanyIsBuilder)
	updated.Note = sub.Note
	return updated, nil
}

// SameDay compares calendar dates in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// =============================================================================
// CHANGE LOG
// =============================================================================

// transactionSnapshot is the JSON shape kept in the change log.
type transactionSnapshot struct {
	ID         TransactionID `json:"id"`
	ActorID    ActorID       `json:"actor_id"`
	Kind       string        `json:"kind,omitempty"`
	PartnerID  PartnerID     `json:"partner_id"`
	OccurredAt time.Time     `json:"occurred_at"`
	GrossValue *string       `json:"gross_value"`
	Points     string        `json:"points"`
	Note       string        `json:"note,omitempty"`
}

func snapshotJSON(tx Transaction) string {
	snap := transactionSnapshot{
		ID:         tx.ID,
		ActorID:    tx.ActorID,
		PartnerID:  tx.PartnerID,
		OccurredAt: tx.Timestamp,
		Points:     tx.Points.String(),
		Note:       tx.Note,
	}
	if tx.ActorKind != nil {
		snap.Kind = tx.ActorKind.KindID()
	}
	if tx.GrossValue.Valid {
		v := tx.GrossValue.Decimal.String()
		snap.GrossValue = &v
	}
	data, _ := json.Marshal(snap)
	return string(data)
}

// NewChangeLogEntry records an edit (after != nil) or a delete (after == nil).
// The store assigns the ID when left empty.
func NewChangeLogEntry(before Transaction, after *Transaction, userID PartnerID, userName string, at time.Time) ChangeLogEntry {
	entry := ChangeLogEntry{
		TransactionID: before.ID,
		Action:        ChangeDelete,
		Before:        snapshotJSON(before),
		UserID:        userID,
		UserName:      userName,
		At:            at,
	}
	if after != nil {
		entry.Action = ChangeEdit
		entry.After = snapshotJSON(*after)
	}
	return entry
}
