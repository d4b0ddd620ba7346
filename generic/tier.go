/*
tier.go - Partner-diversity multiplier table

PURPOSE:
  Rewards actors that buy from many different partner companies in a month.
  Each tier maps an inclusive range of distinct-partner counts to a value
  multiplier (and a display bonus percentage).

SNAPSHOT SEMANTICS:
  The table is administered through a separate CRUD surface. A recomputation
  run always works on an immutable TierTable snapshot loaded once before the
  run starts; the engine never sees a table that changes mid-run.

FALLBACK:
  A count that falls in no tier uses multiplier 1.0. Validate() reports the
  gaps, overlaps and empty tables that cause this, so callers can surface
  them as a configuration problem instead of silently accepting the default.

EXAMPLE:
  table := generic.TierTable{Tiers: []generic.MultiplierTier{
      {RangeMin: 0, RangeMax: generic.Bound(0), Multiplier: decimal.NewFromInt(1)},
      {RangeMin: 1, Multiplier: decimal.RequireFromString("1.2")}, // unbounded
  }}
  table.MultiplierFor(3) // 1.2
*/
package generic

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MULTIPLIER TIER
// =============================================================================

var identityMultiplier = decimal.NewFromInt(1)

type MultiplierTier struct {
	ID           int64
	RangeMin     int
	RangeMax     *int // nil = unbounded
	Multiplier   decimal.Decimal
	BonusPercent int
}

// Bound returns a pointer to n, for building RangeMax literals.
func Bound(n int) *int { return &n }

// Contains reports whether count is within [RangeMin, RangeMax].
func (t MultiplierTier) Contains(count int) bool {
	if count < t.RangeMin {
		return false
	}
	return t.RangeMax == nil || count <= *t.RangeMax
}

func (t MultiplierTier) String() string {
	if t.RangeMax == nil {
		return fmt.Sprintf("[%d, inf) x%s", t.RangeMin, t.Multiplier.String())
	}
	return fmt.Sprintf("[%d, %d] x%s", t.RangeMin, *t.RangeMax, t.Multiplier.String())
}

// =============================================================================
// TIER TABLE - Snapshot used by one run
// =============================================================================

type TierTable struct {
	Version string
	Tiers   []MultiplierTier
}

// NewTierTable copies rows into a snapshot ordered by RangeMin.
func NewTierTable(version string, rows []MultiplierTier) TierTable {
	tiers := make([]MultiplierTier, len(rows))
	copy(tiers, rows)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].RangeMin < tiers[j].RangeMin })
	return TierTable{Version: version, Tiers: tiers}
}

// MultiplierFor returns the multiplier of the first tier containing count,
// or 1.0 when no tier matches.
func (tt TierTable) MultiplierFor(count int) decimal.Decimal {
	for _, t := range tt.Tiers {
		if t.Contains(count) {
			return t.Multiplier
		}
	}
	return identityMultiplier
}

// Validate checks the table covers [0, inf) with non-overlapping, well-formed
// ranges. It returns nil or a *ConfigurationError listing every problem.
func (tt TierTable) Validate() error {
	var problems []string

	if len(tt.Tiers) == 0 {
		problems = append(problems, "table is empty, every count falls back to 1.0")
		return &ConfigurationError{Version: tt.Version, Problems: problems}
	}

	sorted := NewTierTable(tt.Version, tt.Tiers).Tiers
	for _, t := range sorted {
		if t.RangeMin < 0 {
			problems = append(problems, fmt.Sprintf("tier %s has negative range_min", t))
		}
		if t.RangeMax != nil && *t.RangeMax < t.RangeMin {
			problems = append(problems, fmt.Sprintf("tier %s has range_max below range_min", t))
		}
		if t.Multiplier.IsNegative() {
			problems = append(problems, fmt.Sprintf("tier %s has negative multiplier", t))
		}
	}

	// Coverage: walk the sorted ranges and look for holes and overlaps.
	next := 0
	unbounded := false
	for i, t := range sorted {
		if t.RangeMin > next {
			problems = append(problems, fmt.Sprintf("counts %d-%d match no tier", next, t.RangeMin-1))
		}
		if i > 0 && t.RangeMin < next {
			problems = append(problems, fmt.Sprintf("tier %s overlaps tier %s", t, sorted[i-1]))
		}
		if t.RangeMax == nil || *t.RangeMax == math.MaxInt {
			unbounded = true
			next = math.MaxInt
			continue
		}
		if *t.RangeMax+1 > next {
			next = *t.RangeMax + 1
		}
	}
	if !unbounded {
		problems = append(problems, fmt.Sprintf("counts from %d upward match no tier", next))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ConfigurationError{Version: tt.Version, Problems: problems}
}
