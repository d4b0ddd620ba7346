package office_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/generic/store"
	"github.com/warp/loyalty-engine/office"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func standardTiers() []generic.MultiplierTier {
	return []generic.MultiplierTier{
		{RangeMin: 0, RangeMax: generic.Bound(0), Multiplier: decimal.NewFromInt(1)},
		{RangeMin: 1, RangeMax: generic.Bound(2), Multiplier: decimal.RequireFromString("1.2")},
		{RangeMin: 3, Multiplier: decimal.RequireFromString("1.5")},
	}
}

func tx(id string, actor generic.ActorID, partner generic.PartnerID, at time.Time, value float64) generic.Transaction {
	return generic.Transaction{
		ID:         generic.TransactionID(id),
		ActorID:    actor,
		ActorKind:  office.Kind{},
		PartnerID:  partner,
		Timestamp:  at,
		GrossValue: generic.Value(value),
	}
}

func march2025(t *testing.T) generic.Period {
	p, err := generic.NewPeriod(
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return p
}

func newReports(t *testing.T, mem *store.Memory) *office.Reports {
	r := generic.NewRecomputer(mem, mem, mem, generic.RecomputerOptions{Workers: 2})
	t.Cleanup(r.Close)
	return office.NewReports(r)
}

// =============================================================================
// KIND REGISTRATION
// =============================================================================

func TestKind_RegisteredWithLegacyCodes(t *testing.T) {
	assert.Equal(t, "office", generic.KindForCode("ES").KindID())
	assert.Equal(t, "office", generic.KindForCode("2").KindID())
	assert.NotNil(t, generic.LookupActorKind("office"))
}

// =============================================================================
// RANKING
// =============================================================================

func TestRanking_SortsByNameAndTotals(t *testing.T) {
	// GIVEN: Two named offices and one office without a directory record
	// WHEN: The March ranking is built
	// THEN: Rows are ordered by collated name, the unnamed office falls back
	//       to its display label

	mem := store.NewMemory()
	mem.SetTiers(standardTiers())
	mem.PutActor(office.Kind{}, generic.ActorInfo{ID: "10", Name: "Ávila Arquitetura"})
	mem.PutActor(office.Kind{}, generic.ActorInfo{ID: "11", Name: "Bento Studio"})

	day := func(d int) time.Time { return time.Date(2025, time.March, d, 10, 0, 0, 0, time.UTC) }
	mem.Append(
		tx("a1", "11", 7, day(2), 1000),
		tx("b1", "10", 7, day(3), 2000),
		tx("c1", "12", 8, day(4), 500),
		tx("a2", "11", 9, day(5), 1000),
	)

	report, err := newReports(t, mem).Ranking(context.Background(), march2025(t), false)
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)

	// "Ávila" sorts before "Bento" only with locale collation
	assert.Equal(t, "Ávila Arquitetura", report.Rows[0].Name)
	assert.Equal(t, "Bento Studio", report.Rows[1].Name)
	assert.Equal(t, "Office #12", report.Rows[2].Name)

	// Bento: partners 7 then 9 => 2 distinct, tier 1.2 over 2000 => 2400
	bento := report.Rows[1].Result
	assert.Equal(t, 2, bento.TotalDistinctPartners)
	assert.True(t, decimal.NewFromInt(2400).Equal(bento.TotalIndexedValue))
	assert.Equal(t, int64(24), bento.TotalPoints)

	assert.Equal(t, 4, report.Total.Records)
	assert.Equal(t, int64(24+24+6), report.Total.Points)
	assert.Empty(t, report.ConfigurationIssues)
	assert.Equal(t, "office", report.Kind.KindID())
}

func TestRanking_ExcludesOtherKinds(t *testing.T) {
	mem := store.NewMemory()
	mem.SetTiers(standardTiers())
	other := tx("p1", "99", 7, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), 1000)
	other.ActorKind = generic.StringKind{ID: "professional"}
	mem.Append(other)

	report, err := newReports(t, mem).Ranking(context.Background(), march2025(t), false)
	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.True(t, report.Total.IndexedValue.IsZero())
}

func TestStatement_SingleOfficeWithAudit(t *testing.T) {
	mem := store.NewMemory()
	mem.SetTiers(standardTiers())
	at := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	mem.Append(tx("a1", "10", 7, at, 1000), tx("b1", "11", 7, at, 3000))

	report, err := newReports(t, mem).Statement(context.Background(), "10", march2025(t))
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, generic.ActorID("10"), report.Rows[0].ActorID)
	require.Len(t, report.Rows[0].Result.Audit, 1)
	assert.Equal(t, generic.TransactionID("a1"), report.Rows[0].Result.Audit[0].TransactionID)
}

func TestRanking_SurfacesTierTableIssues(t *testing.T) {
	// GIVEN: An empty tier table
	// WHEN: A ranking is built
	// THEN: The report still computes with multiplier 1.0 and lists the issue

	mem := store.NewMemory()
	mem.Append(tx("a1", "10", 7, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), 1000))

	report, err := newReports(t, mem).Ranking(context.Background(), march2025(t), false)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(report.Rows[0].Result.TotalIndexedValue))
	assert.NotEmpty(t, report.ConfigurationIssues)
}
