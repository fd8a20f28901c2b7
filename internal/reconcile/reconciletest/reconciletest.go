// Package reconciletest wires a complete reconciler over a seeded SQLite
// store for tests in adapter and pipeline packages.
package reconciletest

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
	"github.com/duck57/poke-db/internal/reconcile"
	"github.com/duck57/poke-db/internal/registry"
	"github.com/duck57/poke-db/internal/rotation"
	"github.com/duck57/poke-db/internal/species"
	"github.com/duck57/poke-db/internal/store"
	"github.com/duck57/poke-db/internal/store/storetest"
)

// FirstShift is when rotation 1 starts.
var FirstShift = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

// Start is the fake clock's initial time.
var Start = time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)

// Stack is a wired reconciler and its collaborators.
type Stack struct {
	Store      *store.Store
	Fixture    storetest.Fixture
	Calendar   *rotation.Calendar
	Reconciler *reconcile.Reconciler
	Clock      *clockwork.FakeClock
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// New seeds a temp SQLite store, installs a fake clock at Start and creates
// rotation 1 at FirstShift.
func New(t testing.TB) *Stack {
	t.Helper()
	return NewOn(t, storetest.New(t))
}

// NewOn is New over an already migrated store.
func NewOn(t testing.TB, s *store.Store) *Stack {
	t.Helper()
	f := storetest.Seed(t, s)

	fc := clockwork.NewFakeClockAt(Start)
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := observability.NewMetricsForTesting()
	reg := registry.New(s, 0)
	gate := &keylock.Gate{}
	cal := rotation.NewCalendar(s, gate, reg, storetest.SystemID, m, logger)
	rec := reconcile.New(reconcile.Deps{
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

	_, err := cal.Create(context.Background(), rotation.NewRotation{Effective: FirstShift, ActingID: storetest.HumanID})
	require.NoError(t, err)

	return &Stack{Store: s, Fixture: f, Calendar: cal, Reconciler: rec, Clock: fc, Metrics: m, Logger: logger}
}
