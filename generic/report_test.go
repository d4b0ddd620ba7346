package generic_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/warp/loyalty-engine/generic"
)

func actorResult(id generic.ActorID, name string, points int64, adjusted, indexed string, records int) generic.ActorResult {
	return generic.ActorResult{
		ActorID: id,
		Name:    name,
		Result: generic.AccrualResult{
			TotalAdjustedValue:    dec(adjusted),
			TotalIndexedValue:     dec(indexed),
			TotalDistinctPartners: 1,
			TotalPoints:           points,
			TransactionCount:      records,
		},
	}
}

// =============================================================================
// AGGREGATE
// =============================================================================

func TestAggregate_SortsByCollatedNameAndTotals(t *testing.T) {
	// GIVEN: Three actors with accented and lower-case names, plus one empty actor
	// WHEN: Aggregating with pt-BR collation
	// THEN: Accents and case do not push names to the end, the empty actor is
	//       dropped and the grand total sums the remaining rows

	report := generic.Aggregate([]generic.ActorResult{
		actorResult("3", "Bruno", 10, "1000", "1100", 2),
		actorResult("1", "Álvaro", 5, "500", "500", 1),
		actorResult("2", "alice", 7, "700", "770", 1),
		{ActorID: "4", Name: "Aaron"},
	}, generic.AggregateOptions{Language: language.BrazilianPortuguese})

	if len(report.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(report.Rows))
	}
	var names []string
	for _, r := range report.Rows {
		names = append(names, r.Name)
	}
	want := []string{"alice", "Álvaro", "Bruno"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}

	assertDecimal(t, "total adjusted", "2200", report.Total.AdjustedValue)
	assertDecimal(t, "total indexed", "2370", report.Total.IndexedValue)
	if report.Total.Points != 22 {
		t.Errorf("expected 22 points, got %d", report.Total.Points)
	}
	if report.Total.Records != 4 {
		t.Errorf("expected 4 records, got %d", report.Total.Records)
	}
	if report.Total.DistinctPartners != 3 {
		t.Errorf("expected 3 distinct partners, got %d", report.Total.DistinctPartners)
	}
}

func TestAggregate_EqualNamesFallBackToActorID(t *testing.T) {
	report := generic.Aggregate([]generic.ActorResult{
		actorResult("b", "Estúdio", 1, "100", "100", 1),
		actorResult("a", "Estúdio", 1, "100", "100", 1),
	}, generic.AggregateOptions{})

	if report.Rows[0].ActorID != "a" || report.Rows[1].ActorID != "b" {
		t.Errorf("expected ID order a, b; got %s, %s", report.Rows[0].ActorID, report.Rows[1].ActorID)
	}
}

func TestAggregate_EqualNamesOrderNumericIDsByValue(t *testing.T) {
	// GIVEN: Same-named actors with numeric IDs 10, 9 and 100, plus two
	//        actors sharing ID 5 across kinds
	// WHEN: Aggregating
	// THEN: Numeric IDs sort by value and the shared ID falls back to kind

	office := actorResult("5", "Estúdio", 1, "100", "100", 1)
	office.Kind = testOffice
	pro := actorResult("5", "Estúdio", 1, "100", "100", 1)
	pro.Kind = testProfessional

	report := generic.Aggregate([]generic.ActorResult{
		actorResult("10", "Estúdio", 1, "100", "100", 1),
		pro,
		actorResult("100", "Estúdio", 1, "100", "100", 1),
		actorResult("9", "Estúdio", 1, "100", "100", 1),
		office,
	}, generic.AggregateOptions{})

	var got []string
	for _, r := range report.Rows {
		label := string(r.ActorID)
		if r.Kind != nil {
			label = r.Kind.KindID() + "/" + label
		}
		got = append(got, label)
	}
	want := []string{"test-office/5", "test-professional/5", "9", "10", "100"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	report := generic.Aggregate(nil, generic.AggregateOptions{})
	if len(report.Rows) != 0 || report.Total.Points != 0 || !report.Total.IndexedValue.IsZero() {
		t.Errorf("expected empty report, got %+v", report)
	}
}

// =============================================================================
// PARTNER REPORT
// =============================================================================

func TestPartnerFee(t *testing.T) {
	tests := []struct {
		total string
		want  string
	}{
		{"0", "500"},
		{"75000", "500"},
		{"100000", "500"},
		{"200000", "650"},
		{"150000", "575"},
	}
	for _, tt := range tests {
		assertDecimal(t, "fee for "+tt.total, tt.want, generic.PartnerFee(dec(tt.total)))
	}
}

func TestAggregateByPartner(t *testing.T) {
	// GIVEN: Two purchases at partner 1 and one larger one at partner 2
	// WHEN: Aggregating with operations
	// THEN: Partner 2 ranks first by stored points and each row carries its fee

	day := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	withPoints := func(tx generic.Transaction, pts string) generic.Transaction {
		tx.Points = dec(pts)
		return tx
	}
	report := generic.AggregateByPartner([]generic.Transaction{
		withPoints(purchase("a", 1, day, 1000), "10"),
		withPoints(purchase("b", 2, day.Add(time.Hour), 3000), "30"),
		withPoints(purchase("c", 1, day.Add(2*time.Hour), 500), "5"),
	}, true)

	if len(report.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(report.Rows))
	}
	if report.Rows[0].PartnerID != 2 {
		t.Errorf("expected partner 2 first, got %d", report.Rows[0].PartnerID)
	}
	assertDecimal(t, "partner 1 value", "1500", report.Rows[1].TotalValue)
	assertDecimal(t, "partner 1 points", "15", report.Rows[1].TotalPoints)
	if len(report.Rows[1].Operations) != 2 {
		t.Errorf("expected 2 operations for partner 1, got %d", len(report.Rows[1].Operations))
	}
	assertDecimal(t, "total fee", "1000", report.Total.Fee)
	assertDecimal(t, "total points", "45", report.Total.Points)
	if report.Total.Records != 3 {
		t.Errorf("expected 3 records, got %d", report.Total.Records)
	}

	summary := generic.AggregateByPartner([]generic.Transaction{purchase("a", 1, day, 1000)}, false)
	if summary.Rows[0].Operations != nil {
		t.Error("expected no operations in summary mode")
	}
	if !summary.Rows[0].TotalPoints.Equal(decimal.Zero) {
		t.Errorf("expected zero stored points, got %s", summary.Rows[0].TotalPoints)
	}
}
