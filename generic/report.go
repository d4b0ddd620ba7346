/*
report.go - Ranking and totals across actors

PURPOSE:
  Merges per-actor AccrualResults into one report: rows sorted by display
  name with locale-aware collation, plus a grand-total row.

RULES:
  - Actors with zero transactions are excluded, not reported as errors.
  - Sorting is stable; equal names fall back to actor ID order (numeric when
    both IDs are integers) so the output does not depend on the order results
    were produced in.
  - No formatting, currency symbols or locale strings. Presentation belongs
    to the caller.

SEE ALSO:
  - recompute.go: Produces the ActorResults
  - partner_report.go: The per-partner-company report
*/
package generic

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultCollation is the locale used for name ordering.
var DefaultCollation = language.BrazilianPortuguese

// =============================================================================
// REPORT TYPES
// =============================================================================

// ActorResult is one actor's recomputation annotated with display data.
type ActorResult struct {
	ActorID   ActorID
	Kind      ActorKind
	Name      string
	TradeName string
	Result    AccrualResult
}

type GrandTotal struct {
	AdjustedValue    decimal.Decimal
	IndexedValue     decimal.Decimal
	DistinctPartners int
	Points           int64
	Records          int
}

type RankedReport struct {
	Kind     ActorKind
	Period   Period
	Detailed bool
	Rows     []ActorResult
	Total    GrandTotal

	// Snapshot metadata and non-fatal problems surfaced to the caller.
	TierVersion         string
	ConfigurationIssues []string
	Warnings            []DataIntegrityWarning
}

type AggregateOptions struct {
	Language language.Tag
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Aggregate sorts results by name and computes the grand total.
func Aggregate(results []ActorResult, opts AggregateOptions) RankedReport {
	tag := opts.Language
	if tag == language.Und {
		tag = DefaultCollation
	}
	// Collators are not safe for concurrent use; one per call.
	coll := collate.New(tag, collate.IgnoreCase)

	rows := make([]ActorResult, 0, len(results))
	for _, r := range results {
		if r.Result.IsEmpty() {
			continue
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := coll.CompareString(rows[i].Name, rows[j].Name); c != 0 {
			return c < 0
		}
		if c := compareActorIDs(rows[i].ActorID, rows[j].ActorID); c != 0 {
			return c < 0
		}
		return kindOf(rows[i].Kind) < kindOf(rows[j].Kind)
	})

	total := GrandTotal{
		AdjustedValue: decimal.Zero,
		IndexedValue:  decimal.Zero,
	}
	var warnings []DataIntegrityWarning
	for _, r := range rows {
		total.AdjustedValue = total.AdjustedValue.Add(r.Result.TotalAdjustedValue)
		total.IndexedValue = total.IndexedValue.Add(r.Result.TotalIndexedValue)
		total.DistinctPartners += r.Result.TotalDistinctPartners
		total.Points += r.Result.TotalPoints
		total.Records += r.Result.TransactionCount
		warnings = append(warnings, r.Result.Warnings...)
	}

	return RankedReport{Rows: rows, Total: total, Warnings: warnings}
}

// compareActorIDs orders numeric IDs by value ("9" before "10") and falls
// back to string order when either ID is not an integer.
func compareActorIDs(a, b ActorID) int {
	x, errA := strconv.ParseInt(string(a), 10, 64)
	y, errB := strconv.ParseInt(string(b), 10, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func kindOf(k ActorKind) string {
	if k == nil {
		return ""
	}
	return k.KindID()
}
