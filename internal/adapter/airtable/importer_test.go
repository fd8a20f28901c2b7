package airtable

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/reconcile/reconciletest"
)

// fakeRecords serves a fixed table, honouring the serial filter.
type fakeRecords struct {
	rows  []Record
	err   error
	calls []int
}

func (f *fakeRecords) RecordsAfter(_ context.Context, _ string, serial int) ([]Record, error) {
	f.calls = append(f.calls, serial)
	if f.err != nil {
		return nil, f.err
	}
	var out []Record
	for _, r := range f.rows {
		if r.Fields.Serial > serial {
			out = append(out, r)
		}
	}
	return out, nil
}

// failingSubmitter passes reports through until the failAt serial.
type failingSubmitter struct {
	inner  Submitter
	failAt int
}

func (f *failingSubmitter) Submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error) {
	if sub.ForeignRow != nil && *sub.ForeignRow == f.failAt {
		return domain.ReportOutcome{}, errors.New("database is locked")
	}
	return f.inner.Submit(ctx, sub)
}

func denverRows() []Record {
	return []Record{
		record(3, "alice", `#25 Pikachu at "Cheesman Park" 2.`),
		record(1, " Alice ", `#25 Pikachu at "Cheesman Park" 2.`),
		record(2, "Bob", `#25 Pikachu at "2".`),
		record(4, "dave", "garbage"),
	}
}

func TestImporter_ImportCity(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: denverRows()}
	im := NewImporter(src, st.Store, st.Reconciler, st.Metrics, st.Logger)
	ctx := context.Background()

	cursor, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)

	assert.Equal(t, "airtable:appDEN", cursor.Source)
	assert.NotEmpty(t, cursor.RunID)
	assert.Equal(t, 4, cursor.EndRow)
	assert.Equal(t, 4, cursor.Total)
	assert.Equal(t, 1, cursor.FirstReports)
	assert.Equal(t, 1, cursor.Confirmations)
	assert.Equal(t, 1, cursor.Duplicates)
	assert.Equal(t, 1, cursor.Errors)
	assert.Equal(t, reconciletest.Start, cursor.Time)

	saved, ok, err := st.Store.LatestCursor(ctx, "airtable:appDEN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cursor.RunID, saved.RunID)

	entry, err := st.Store.CurrentResident(ctx, 1, st.Fixture.Cheesman.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.SpeciesName)
	assert.Equal(t, "Pikachu", *entry.SpeciesName)
	assert.True(t, entry.Confirmed)

	report, err := st.Store.ReportBySourceRef(ctx, RowRef("appDEN", 2))
	require.NoError(t, err)
	assert.Equal(t, "bob", report.UserName)
	assert.Equal(t, "AirTable#3", report.ServerName)
	require.NotNil(t, report.ForeignRowNum)
	assert.Equal(t, 2, *report.ForeignRowNum)

	assert.InDelta(t, 1, testutil.ToFloat64(st.Metrics.ImportRows.WithLabelValues("airtable", "first_report")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(st.Metrics.ImportRows.WithLabelValues("airtable", "error")), 0)
}

func TestImporter_ResumesFromCursor(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: denverRows()}
	im := NewImporter(src, st.Store, st.Reconciler, st.Metrics, st.Logger)
	ctx := context.Background()

	first, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)

	again, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total)
	assert.Equal(t, 4, again.EndRow)

	src.rows = append(src.rows, record(5, "erin", `#63 Abra at "1".`))
	third, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Total)
	assert.Equal(t, 1, third.FirstReports)
	assert.Equal(t, 5, third.EndRow)

	assert.Equal(t, []int{0, 4, 4}, src.calls)
	assert.NotEqual(t, first.RunID, third.RunID)
}

// conflictRows confirm Pikachu at Cheesman, then a third bot disagrees.
func conflictRows() []Record {
	return []Record{
		record(1, "alice", `#25 Pikachu at "2".`),
		record(2, "bob", `#25 Pikachu at "2".`),
		record(3, "carol", `#179 Mareep at "2".`),
		record(4, "dave", "garbage"),
	}
}

func assertCheesmanPikachu(t *testing.T, st *reconciletest.Stack) {
	t.Helper()
	entry, err := st.Store.CurrentResident(context.Background(), 1, st.Fixture.Cheesman.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.SpeciesName)
	assert.Equal(t, "Pikachu", *entry.SpeciesName)
	assert.True(t, entry.Confirmed)
}

func TestImporter_FailureSavesProgress(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: conflictRows()}
	sub := &failingSubmitter{inner: st.Reconciler, failAt: 4}
	im := NewImporter(src, st.Store, sub, st.Metrics, st.Logger)
	ctx := context.Background()

	partial, err := im.ImportCity(ctx, st.Fixture.City)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 4")
	assert.Equal(t, 3, partial.EndRow)
	assert.Equal(t, 3, partial.Total)
	assert.Equal(t, 1, partial.Conflicts)

	saved, ok, err := st.Store.LatestCursor(ctx, "airtable:appDEN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, saved.EndRow)
	assertCheesmanPikachu(t, st)

	sub.failAt = 0
	rerun, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)
	assert.Equal(t, 1, rerun.Total)
	assert.Equal(t, 1, rerun.Errors)
	assert.Equal(t, 4, rerun.EndRow)
	assert.Equal(t, []int{0, 3}, src.calls)
	assertCheesmanPikachu(t, st)
}

func TestImporter_FailureBeforeAnyRowKeepsNoCursor(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: denverRows()}
	sub := &failingSubmitter{inner: st.Reconciler, failAt: 1}
	im := NewImporter(src, st.Store, sub, st.Metrics, st.Logger)
	ctx := context.Background()

	_, err := im.ImportCity(ctx, st.Fixture.City)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, ok, err := st.Store.LatestCursor(ctx, "airtable:appDEN")
	require.NoError(t, err)
	assert.False(t, ok)

	src.err = errors.New("airtable down")
	_, err = im.ImportCity(ctx, st.Fixture.City)
	assert.ErrorContains(t, err, "airtable down")
}

// forgetfulCursors drops every save, as if the cursor write was lost.
type forgetfulCursors struct {
	CursorStore
}

func (forgetfulCursors) SaveCursor(context.Context, *domain.ImportCursor) error { return nil }

func TestImporter_RowsFiledTwiceAreNotReconciledAgain(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: conflictRows()}
	sub := &failingSubmitter{inner: st.Reconciler, failAt: 4}
	im := NewImporter(src, forgetfulCursors{st.Store}, sub, st.Metrics, st.Logger)
	ctx := context.Background()

	_, err := im.ImportCity(ctx, st.Fixture.City)
	require.Error(t, err)
	assertCheesmanPikachu(t, st)

	sub.failAt = 0
	rerun, err := im.ImportCity(ctx, st.Fixture.City)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, src.calls)
	assert.Equal(t, 4, rerun.Total)
	assert.Equal(t, 1, rerun.FirstReports)
	assert.Equal(t, 1, rerun.Confirmations)
	assert.Equal(t, 1, rerun.Conflicts)
	assert.Equal(t, 1, rerun.Errors)
	assertCheesmanPikachu(t, st)

	reports, err := st.Store.ReportsForRotation(ctx, 1)
	require.NoError(t, err)
	var carol int
	for _, r := range reports {
		if r.UserName == "carol" {
			carol++
		}
	}
	assert.Equal(t, 1, carol)
	assert.InDelta(t, 3, testutil.ToFloat64(st.Metrics.ReplayedReports), 0)
}

func TestImporter_ImportAll(t *testing.T) {
	st := reconciletest.New(t)
	src := &fakeRecords{rows: denverRows()}
	im := NewImporter(src, st.Store, st.Reconciler, st.Metrics, st.Logger)

	results, err := im.ImportAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Denver", results[0].City.Name)
	assert.Equal(t, 4, results[0].Cursor.Total)
	assert.NoError(t, results[0].Err)
}

func TestImporter_CityWithoutBot(t *testing.T) {
	st := reconciletest.New(t)
	im := NewImporter(&fakeRecords{}, st.Store, st.Reconciler, st.Metrics, st.Logger)

	_, err := im.ImportCity(context.Background(), domain.City{ID: 9, Name: "Nowhere"})
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	created := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		rec     Record
		species string
		place   string
	}{
		{"quoted name then id", record(1, "a", `#25 Pikachu at "Cheesman Park" 2.`), "25", "2"},
		{"id inside quotes", record(1, "a", `#179 Mareep at "12".`), "179", "12"},
		{"no park", record(1, "a", "#25 Pikachu"), "25", ""},
		{"empty summary", record(1, "a", ""), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ParseRecord(tt.rec)
			assert.Equal(t, tt.species, row.Species)
			assert.Equal(t, tt.place, row.Place)
			assert.Equal(t, created, row.Time)
			assert.Equal(t, 1, row.Serial)
		})
	}

	row := ParseRecord(Record{CreatedTime: "yesterday", Fields: Fields{Serial: 7, Name: "  MixedCase "}})
	assert.True(t, row.Time.IsZero())
	assert.Equal(t, "mixedcase", row.Submitter)
	assert.Equal(t, 7, row.Serial)
}

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "airtable:appDEN", SourceKey("appDEN"))
}

// countingCursors counts ImportAll runs through CitiesWithAirtable.
type countingCursors struct {
	CursorStore
	runs atomic.Int32
}

func (c *countingCursors) CitiesWithAirtable(context.Context) ([]domain.City, error) {
	c.runs.Add(1)
	return nil, errors.New("database is locked")
}

func TestImporter_Poll(t *testing.T) {
	cursors := &countingCursors{}
	im := NewImporter(&fakeRecords{}, cursors, nil, nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, im.Poll(ctx, 10*time.Millisecond))
	assert.GreaterOrEqual(t, cursors.runs.Load(), int32(2))
}
