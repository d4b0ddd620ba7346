package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/office"
	"github.com/warp/loyalty-engine/professional"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

func yearPeriod(t *testing.T) generic.Period {
	p, err := generic.NewPeriod(at(time.January, 1, 0), at(time.December, 31, 0))
	require.NoError(t, err)
	return p
}

func officeTx(id string, actor generic.ActorID, partner generic.PartnerID, ts time.Time, value float64) generic.Transaction {
	return generic.Transaction{
		ID:         generic.TransactionID(id),
		ActorID:    actor,
		ActorKind:  office.Kind{},
		PartnerID:  partner,
		Timestamp:  ts,
		GrossValue: generic.Value(value),
		Points:     generic.ComputePoints(decimal.NewFromFloat(value), false),
	}
}

// =============================================================================
// TRANSACTION SOURCE
// =============================================================================

func TestLoadTransactions_OrderedAndJoinedWithBuilderFlag(t *testing.T) {
	// GIVEN: Transactions inserted out of timestamp order, one tie
	// WHEN: Loaded for the year
	// THEN: Ascending by timestamp, ties in insertion order, builder flag joined

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveCompany(ctx, sqlite.Company{ID: 7, Name: "Construtora Alfa", Builder: true}))
	require.NoError(t, store.SaveCompany(ctx, sqlite.Company{ID: 8, Name: "Marmoraria Beta"}))

	require.NoError(t, store.CreateTransaction(ctx, officeTx("c", "1", 8, at(time.March, 5, 10), 300)))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("a", "1", 7, at(time.March, 1, 10), 4000)))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("b2", "1", 8, at(time.March, 3, 10), 200)))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("b1", "1", 7, at(time.March, 3, 10), 100)))

	txs, err := store.LoadTransactions(ctx, generic.TransactionFilter{Period: yearPeriod(t), Kind: office.Kind{}})
	require.NoError(t, err)
	require.Len(t, txs, 4)

	ids := []generic.TransactionID{txs[0].ID, txs[1].ID, txs[2].ID, txs[3].ID}
	assert.Equal(t, []generic.TransactionID{"a", "b2", "b1", "c"}, ids)

	assert.True(t, txs[0].PartnerIsBuilder)
	assert.Equal(t, "Construtora Alfa", txs[0].PartnerName)
	assert.False(t, txs[3].PartnerIsBuilder)
	assert.Equal(t, "office", txs[0].ActorKind.KindID())
	assert.True(t, decimal.NewFromInt(4000).Equal(txs[0].GrossValue.Decimal))
	assert.True(t, decimal.NewFromInt(40).Equal(txs[0].Points))
	assert.True(t, at(time.March, 1, 10).Equal(txs[0].Timestamp))
}

func TestLoadTransactions_FiltersKindActorPeriodAndPartner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pro := officeTx("p1", "1", 7, at(time.April, 2, 9), 500)
	pro.ActorKind = professional.Kind{}
	require.NoError(t, store.CreateTransaction(ctx, pro))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("o1", "1", 7, at(time.April, 2, 9), 500)))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("o2", "2", 8, at(time.April, 3, 9), 500)))
	require.NoError(t, store.CreateTransaction(ctx, officeTx("o3", "1", 7, at(time.May, 1, 9), 500)))

	april, err := generic.NewPeriod(at(time.April, 1, 0), at(time.April, 30, 0))
	require.NoError(t, err)

	actor := generic.ActorID("1")
	txs, err := store.LoadTransactions(ctx, generic.TransactionFilter{Period: april, Kind: office.Kind{}, ActorID: &actor})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.TransactionID("o1"), txs[0].ID)

	partner := generic.PartnerID(7)
	txs, err = store.LoadTransactions(ctx, generic.TransactionFilter{Period: april, Partner: &partner})
	require.NoError(t, err)
	assert.Len(t, txs, 2, "partner filter spans both kinds")

	txs, err = store.LoadTransactions(ctx, generic.TransactionFilter{Period: april, Kind: professional.Kind{}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "professional", txs[0].ActorKind.KindID())
}

func TestLoadTransactions_EndOfDayIncluded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateTransaction(ctx, officeTx("late", "1", 7, at(time.April, 30, 23), 100)))

	april, err := generic.NewPeriod(at(time.April, 1, 0), at(time.April, 30, 0))
	require.NoError(t, err)

	txs, err := store.LoadTransactions(ctx, generic.TransactionFilter{Period: april})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLoadTransactions_CorruptTimestampFails(t *testing.T) {
	// GIVEN: A stored transaction whose occurred_at was overwritten with junk
	// WHEN: Loading it through the period query and by ID
	// THEN: Both reads fail instead of returning a zero timestamp

	path := filepath.Join(t.TempDir(), "loyalty.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.CreateTransaction(ctx, officeTx("bad", "1", 7, at(time.March, 5, 10), 100)))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.ExecContext(ctx, "UPDATE transactions SET occurred_at = ? WHERE id = ?", "2025-03-05T10:00:00Z-bad", "bad")
	require.NoError(t, err)

	_, err = store.LoadTransactions(ctx, generic.TransactionFilter{Period: yearPeriod(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occurred_at")

	_, err = store.GetTransaction(ctx, "bad")
	assert.Error(t, err)
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func TestUpdateAndDelete_WriteChangeLog(t *testing.T) {
	// GIVEN: A stored transaction
	// WHEN: It is edited and then deleted
	// THEN: Reports no longer see it and both changes are logged

	store := newTestStore(t)
	ctx := context.Background()
	original := officeTx("t1", "1", 7, at(time.June, 2, 9), 1000)
	require.NoError(t, store.CreateTransaction(ctx, original))

	edited := original
	edited.GrossValue = generic.Value(1500)
	edited.Points = decimal.NewFromInt(15)
	require.NoError(t, store.UpdateTransaction(ctx, edited,
		generic.NewChangeLogEntry(original, &edited, 7, "Alfa", at(time.June, 2, 10))))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1500).Equal(got.GrossValue.Decimal))
	assert.True(t, decimal.NewFromInt(15).Equal(got.Points))

	require.NoError(t, store.DeleteTransaction(ctx, "t1",
		generic.NewChangeLogEntry(edited, nil, 7, "Alfa", at(time.June, 2, 11))))

	_, err = store.GetTransaction(ctx, "t1")
	assert.ErrorIs(t, err, generic.ErrTransactionNotFound)

	txs, err := store.LoadTransactions(ctx, generic.TransactionFilter{Period: yearPeriod(t)})
	require.NoError(t, err)
	assert.Empty(t, txs)

	log, err := store.ChangeLog(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, generic.ChangeEdit, log[0].Action)
	assert.Contains(t, log[0].After, `"gross_value":"1500"`)
	assert.Equal(t, generic.ChangeDelete, log[1].Action)
	assert.Empty(t, log[1].After)

	err = store.DeleteTransaction(ctx, "t1", generic.NewChangeLogEntry(edited, nil, 7, "Alfa", time.Now()))
	assert.ErrorIs(t, err, generic.ErrTransactionNotFound)
}

func TestCreateTransaction_NullValueRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	manual := officeTx("m1", "1", 0, at(time.July, 1, 9), 0)
	manual.GrossValue = decimal.NullDecimal{}
	require.NoError(t, store.CreateTransaction(ctx, manual))

	got, err := store.GetTransaction(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, got.GrossValue.Valid)
	assert.Equal(t, generic.UnknownPartner, got.PartnerID)
}

// =============================================================================
// TIERS
// =============================================================================

func TestTiers_ReplaceCreateDeleteBumpVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	table, err := store.LoadTiers(ctx)
	require.NoError(t, err)
	assert.Empty(t, table.Tiers)
	assert.Equal(t, "v0", table.Version)

	saved, err := store.ReplaceTiers(ctx, []generic.MultiplierTier{
		{RangeMin: 3, Multiplier: decimal.RequireFromString("1.5"), BonusPercent: 50},
		{RangeMin: 0, RangeMax: generic.Bound(2), Multiplier: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, 0, saved[0].RangeMin)
	assert.Nil(t, saved[1].RangeMax)

	created, err := store.CreateTier(ctx, generic.MultiplierTier{RangeMin: 9, Multiplier: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	require.NoError(t, store.DeleteTier(ctx, created.ID))
	assert.ErrorIs(t, store.DeleteTier(ctx, created.ID), generic.ErrTierNotFound)

	table, err = store.LoadTiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3", table.Version)
	assert.True(t, decimal.RequireFromString("1.5").Equal(table.MultiplierFor(4)))
	assert.NoError(t, table.Validate())
}

func TestSeedTiers_OnlyWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	table := generic.NewTierTable("seed", []generic.MultiplierTier{{RangeMin: 0, Multiplier: decimal.NewFromInt(1)}})

	seeded, err := store.SeedTiers(ctx, table)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = store.SeedTiers(ctx, table)
	require.NoError(t, err)
	assert.False(t, seeded)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestCutoffDay_DefaultSetAndLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day, err := store.CutoffDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, generic.DefaultCutoffDay, day)

	require.NoError(t, store.SetCutoffDay(ctx, 15, "admin"))
	require.NoError(t, store.SetCutoffDay(ctx, 20, "admin"))
	assert.ErrorIs(t, store.SetCutoffDay(ctx, 32, "admin"), generic.ErrInvalidValue)

	day, err = store.CutoffDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, day)

	changes, err := store.SettingChanges(ctx, generic.SettingCutoffDay)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "15", changes[0].OldValue)
	assert.Equal(t, "20", changes[0].NewValue)
	assert.Empty(t, changes[1].OldValue)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestActorNames_ResolvesKnownIDsPerKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveActor(ctx, office.Kind{}, generic.ActorInfo{ID: "1", Name: "Ateliê Norte", TradeName: "Norte"}))
	require.NoError(t, store.SaveActor(ctx, professional.Kind{}, generic.ActorInfo{ID: "1", Name: "Joana Lima"}))

	names, err := store.ActorNames(ctx, office.Kind{}, []generic.ActorID{"1", "2"})
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "Ateliê Norte", names["1"].Name)
	assert.Equal(t, "Norte", names["1"].TradeName)

	_, err = store.GetActor(ctx, professional.Kind{}, "2")
	assert.ErrorIs(t, err, generic.ErrActorNotFound)

	_, err = store.GetCompany(ctx, 99)
	assert.ErrorIs(t, err, generic.ErrPartnerNotFound)
}

// =============================================================================
// REPORT RUNS
// =============================================================================

func TestReportRuns_UpsertByKindAndPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := generic.PreviousMonth(at(time.March, 1, 0))

	require.NoError(t, store.SaveReportRun(ctx, sqlite.ReportRun{
		Kind: "office", PeriodStart: period.Start, PeriodEnd: period.End, Status: "running",
	}))
	complete, err := store.IsReportRunComplete(ctx, "office", period)
	require.NoError(t, err)
	assert.False(t, complete)

	done := time.Now()
	require.NoError(t, store.SaveReportRun(ctx, sqlite.ReportRun{
		Kind: "office", PeriodStart: period.Start, PeriodEnd: period.End, Status: "completed",
		Actors: 3, Points: 120, IndexedValue: decimal.RequireFromString("12000.50"),
		Issues: []string{"counts 3-4 match no tier"}, CompletedAt: &done,
	}))

	runs, err := store.ReportRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, int64(120), runs[0].Points)
	assert.True(t, decimal.RequireFromString("12000.5").Equal(runs[0].IndexedValue))
	assert.Equal(t, []string{"counts 3-4 match no tier"}, runs[0].Issues)
	require.NotNil(t, runs[0].CompletedAt)

	complete, err = store.IsReportRunComplete(ctx, "office", period)
	require.NoError(t, err)
	assert.True(t, complete)
}
