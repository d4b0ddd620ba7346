// Package office credits points to architecture offices.
// It uses the generic engine unchanged; only the actor kind differs.
package office

import (
	"context"

	"github.com/warp/loyalty-engine/generic"
)

// =============================================================================
// OFFICE ACTOR KIND
// =============================================================================

// Kind is the actor kind for architecture offices.
// Implements generic.ActorKind interface.
type Kind struct{}

func (Kind) KindID() string { return "office" }

// TypeCodes lists the codes stored on office transactions. "ES" is written
// for new rows; "2" is the numeric code older rows carry.
func (Kind) TypeCodes() []string { return []string{"ES", "2"} }

func (Kind) Label() string { return "Office" }

// Compile-time check that Kind implements generic.ActorKind
var _ generic.ActorKind = Kind{}

func init() {
	generic.RegisterActorKind(Kind{})
}

// =============================================================================
// REPORTS
// =============================================================================

// Reports produces the office ranking.
type Reports struct {
	recomputer *generic.Recomputer
}

func NewReports(r *generic.Recomputer) *Reports {
	return &Reports{recomputer: r}
}

// Ranking recomputes every office with transactions in the period.
func (r *Reports) Ranking(ctx context.Context, period generic.Period, detailed bool) (generic.RankedReport, error) {
	return r.recomputer.Report(ctx, generic.ReportRequest{Kind: Kind{}, Period: period, Detailed: detailed})
}

// Statement recomputes a single office. The report holds at most one row.
func (r *Reports) Statement(ctx context.Context, id generic.ActorID, period generic.Period) (generic.RankedReport, error) {
	return r.recomputer.Report(ctx, generic.ReportRequest{Kind: Kind{}, Period: period, ActorID: &id, Detailed: true})
}
