// Package professional credits points to independent professionals (architects,
// designers) registered without an office.
// It uses the generic engine unchanged; only the actor kind differs.
package professional

import (
	"context"

	"github.com/warp/loyalty-engine/generic"
)

// =============================================================================
// PROFESSIONAL ACTOR KIND
// =============================================================================

// Kind is the actor kind for independent professionals.
// Implements generic.ActorKind interface.
type Kind struct{}

func (Kind) KindID() string { return "professional" }

// TypeCodes lists the codes stored on professional transactions. "PR" is written
// for new rows; "1" is the numeric code older rows carry.
func (Kind) TypeCodes() []string { return []string{"PR", "1"} }

func (Kind) Label() string { return "Professional" }

// Compile-time check that Kind implements generic.ActorKind
var _ generic.ActorKind = Kind{}

func init() {
	generic.RegisterActorKind(Kind{})
}

// =============================================================================
// REPORTS
// =============================================================================

// Reports produces the professional ranking.
type Reports struct {
	recomputer *generic.Recomputer
}

func NewReports(r *generic.Recomputer) *Reports {
	return &Reports{recomputer: r}
}

// Ranking recomputes every professional with transactions in the period.
func (r *Reports) Ranking(ctx context.Context, period generic.Period, detailed bool) (generic.RankedReport, error) {
	return r.recomputer.Report(ctx, generic.ReportRequest{Kind: Kind{}, Period: period, Detailed: detailed})
}

// Statement recomputes a single professional. The report holds at most one row.
func (r *Reports) Statement(ctx context.Context, id generic.ActorID, period generic.Period) (generic.RankedReport, error) {
	return r.recomputer.Report(ctx, generic.ReportRequest{Kind: Kind{}, Period: period, ActorID: &id, Detailed: true})
}
