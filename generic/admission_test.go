package generic_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/warp/loyalty-engine/generic"
)

func submission(company generic.PartnerID, value string) generic.Submission {
	return generic.Submission{
		CompanyID:   company,
		CompanyName: "Casa Lumen",
		ActorID:     "12",
		GrossValue:  dec(value),
		Note:        "pendentes",
	}
}

// =============================================================================
// ADMISSION WINDOW
// =============================================================================

func TestAdmissionWindow_CutoffDay(t *testing.T) {
	w := generic.NewAdmissionWindow(10)

	if err := w.Admit(at(2025, time.March, 10)); err != nil {
		t.Errorf("expected day 10 to be admitted, got %v", err)
	}

	err := w.Admit(at(2025, time.March, 11))
	if !errors.Is(err, generic.ErrAdmissionClosed) {
		t.Fatalf("expected ErrAdmissionClosed, got %v", err)
	}
	var adm *generic.AdmissionError
	if !errors.As(err, &adm) || adm.CutoffDay != 10 || adm.Day != 11 {
		t.Errorf("unexpected admission error %#v", err)
	}
	if !generic.IsClientError(err) {
		t.Error("expected a client error")
	}
}

func TestNewAdmissionWindow_ClampsInvalidCutoff(t *testing.T) {
	for _, day := range []int{0, -1, 32} {
		if got := generic.NewAdmissionWindow(day).CutoffDay; got != generic.DefaultCutoffDay {
			t.Errorf("cutoff %d: expected default, got %d", day, got)
		}
	}
	if got := generic.NewAdmissionWindow(31).CutoffDay; got != 31 {
		t.Errorf("expected 31, got %d", got)
	}
}

func TestAdmitSubmission(t *testing.T) {
	now := at(2025, time.March, 4)
	w := generic.NewAdmissionWindow(10)

	tx, err := w.AdmitSubmission(submission(1, "2500"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.Timestamp.Equal(now) || tx.PartnerID != 1 || tx.ActorID != "12" {
		t.Errorf("unexpected transaction %+v", tx)
	}
	assertDecimal(t, "points", "25", tx.Points)

	builder := submission(2, "2500")
	builder.CompanyIsBuilder = true
	tx, err = w.AdmitSubmission(builder, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "builder points", "6.25", tx.Points)
	if !tx.PartnerIsBuilder {
		t.Error("expected builder flag on the transaction")
	}

	for _, v := range []string{"0", "-10"} {
		if _, err := w.AdmitSubmission(submission(1, v), now); !errors.Is(err, generic.ErrInvalidValue) {
			t.Errorf("value %s: expected ErrInvalidValue, got %v", v, err)
		}
	}
}

// =============================================================================
// EDITS
// =============================================================================

func TestCheckEditable(t *testing.T) {
	existing := purchase("t1", 1, at(2025, time.March, 4), 1000)

	if err := generic.CheckEditable(existing, 1, at(2025, time.March, 4).Add(5*time.Hour)); err != nil {
		t.Errorf("expected same-day edit by owner to pass, got %v", err)
	}
	if err := generic.CheckEditable(existing, 2, at(2025, time.March, 4)); !generic.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := generic.CheckEditable(existing, 1, at(2025, time.March, 5)); !errors.Is(err, generic.ErrEditWindowClosed) {
		t.Errorf("expected ErrEditWindowClosed, got %v", err)
	}
}

func TestApplyEdit_KeepsTimestampAndRecomputesPoints(t *testing.T) {
	created := at(2025, time.March, 4)
	existing := purchase("t1", 1, created, 1000)
	existing.Points = dec("10")

	sub := submission(1, "1800")
	sub.Note = "corrigido"
	updated, err := generic.ApplyEdit(existing, sub, created.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Timestamp.Equal(created) {
		t.Errorf("expected timestamp to be kept, got %s", updated.Timestamp)
	}
	assertDecimal(t, "value", "1800", updated.GrossValue.Decimal)
	assertDecimal(t, "points", "18", updated.Points)
	if updated.Note != "corrigido" || updated.ID != "t1" {
		t.Errorf("unexpected updated transaction %+v", updated)
	}

	if _, err := generic.ApplyEdit(existing, submission(1, "0"), created); !errors.Is(err, generic.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestNewChangeLogEntry(t *testing.T) {
	before := purchase("t1", 1, at(2025, time.March, 4), 1000)
	after := before
	after.GrossValue = generic.Value(1200)

	edit := generic.NewChangeLogEntry(before, &after, 1, "Casa Lumen", at(2025, time.March, 4))
	if edit.Action != generic.ChangeEdit || edit.After == "" {
		t.Errorf("expected edit entry with after snapshot, got %+v", edit)
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(edit.After), &snap); err != nil {
		t.Fatalf("after snapshot is not JSON: %v", err)
	}
	if snap["gross_value"] != "1200" {
		t.Errorf("expected gross_value 1200 in snapshot, got %v", snap["gross_value"])
	}

	del := generic.NewChangeLogEntry(before, nil, 1, "Casa Lumen", at(2025, time.March, 4))
	if del.Action != generic.ChangeDelete || del.After != "" || del.TransactionID != "t1" {
		t.Errorf("unexpected delete entry %+v", del)
	}
}

// =============================================================================
// POINT CREDIT
// =============================================================================

func TestComputePoints(t *testing.T) {
	assertDecimal(t, "standard", "10", generic.ComputePoints(dec("1000"), false))
	assertDecimal(t, "builder", "2.5", generic.ComputePoints(dec("1000"), true))
	assertDecimal(t, "fraction", "0.15", generic.ComputePoints(dec("15"), false))
}
