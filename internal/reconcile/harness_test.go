package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/keylock"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/place"
	"github.com/duck57/poke-db/internal/registry"
	"github.com/duck57/poke-db/internal/rotation"
	"github.com/duck57/poke-db/internal/species"
	"github.com/duck57/poke-db/internal/store"
	"github.com/duck57/poke-db/internal/store/storetest"
)

// firstShift is a Thursday; rotation 1 starts here in every harness.
var firstShift = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	store    *store.Store
	fix      storetest.Fixture
	rec      *Reconciler
	cal      *rotation.Calendar
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
	rotation domain.RotationPeriod
}

func newHarness(t *testing.T) *harness {
	h := newEmptyHarness(t)
	created, err := h.cal.Create(context.Background(), rotation.NewRotation{Effective: firstShift, ActingID: storetest.HumanID})
	require.NoError(t, err)
	h.rotation = created.Rotation
	return h
}

// newEmptyHarness has places and submitters but no rotations.
func newEmptyHarness(t *testing.T) *harness {
	t.Helper()
	s := storetest.New(t)
	f := storetest.Seed(t, s)

	fc := clockwork.NewFakeClockAt(time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := observability.NewMetricsForTesting()
	reg := registry.New(s, 0)
	gate := &keylock.Gate{}
	cal := rotation.NewCalendar(s, gate, reg, storetest.SystemID, m, logger)
	rec := New(Deps{
		Store:      s,
		Rotations:  cal,
		Submitters: reg,
		Species:    species.NewResolver(s),
		Places:     place.NewResolver(s),
		Gate:       gate,
		Metrics:    m,
		Logger:     logger,
	})
	cal.SetReporter(rec)

	return &harness{t: t, store: s, fix: f, rec: rec, cal: cal, clock: fc, metrics: m}
}

// report submits at the fake clock's time and then advances it a minute, so
// later reports always sort after earlier ones.
func (h *harness) report(name string, submitter uint, place, sp string) domain.ReportOutcome {
	h.t.Helper()
	return h.submit(domain.Submission{Name: name, Place: place, Species: sp, SubmitterID: submitter})
}

func (h *harness) submit(sub domain.Submission) domain.ReportOutcome {
	h.t.Helper()
	if sub.Timestamp.IsZero() {
		sub.Timestamp = h.clock.Now()
	}
	out, err := h.rec.Submit(context.Background(), sub)
	require.NoError(h.t, err)
	h.clock.Advance(time.Minute)
	return out
}

func (h *harness) ledger(park uint) domain.LedgerEntry {
	h.t.Helper()
	e, err := h.store.LedgerEntry(context.Background(), h.rotation.Number, park)
	require.NoError(h.t, err)
	return e
}

func rotationAt(t time.Time) rotation.NewRotation {
	return rotation.NewRotation{Effective: t, ActingID: storetest.HumanID}
}
