// Package app wires the store, resolvers, calendar and reconciler shared by
// the nestd service and the nestctl CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duck57/poke-db/internal/adapter/airtable"
	"github.com/duck57/poke-db/internal/config"
	"github.com/duck57/poke-db/internal/keylock"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/place"
	"github.com/duck57/poke-db/internal/reconcile"
	"github.com/duck57/poke-db/internal/registry"
	"github.com/duck57/poke-db/internal/rotation"
	"github.com/duck57/poke-db/internal/species"
	"github.com/duck57/poke-db/internal/store"
)

// App holds the wired core components.
type App struct {
	Store      *store.Store
	Registry   *registry.Registry
	Species    *species.Resolver
	Places     *place.Resolver
	Calendar   *rotation.Calendar
	Reconciler *reconcile.Reconciler
	Metrics    *observability.Metrics
	Logger     *slog.Logger

	cfg *config.Config
}

// Open connects to the configured database, migrates it and wires the
// reconciler on top.
func Open(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*App, error) {
	s, err := store.Open(store.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Debug: cfg.DBDebug, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(s, cfg, metrics, logger), nil
}

// New wires the components over an open store.
func New(s *store.Store, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *App {
	reg := registry.New(s, cfg.SubmitterCacheTTL)
	sp := species.NewResolver(s)
	places := place.NewResolver(s)
	gate := &keylock.Gate{}

	cal := rotation.NewCalendar(s, gate, reg, cfg.SystemSubmitterID, metrics, logger.With("component", "calendar"))
	rec := reconcile.New(reconcile.Deps{
		Store:      s,
		Rotations:  cal,
		Submitters: reg,
		Species:    species.NewCachedResolver(sp, cfg.SpeciesCacheTTL, metrics),
		Places:     places,
		Gate:       gate,
		Metrics:    metrics,
		Logger:     logger.With("component", "reconciler"),
	})
	cal.SetReporter(rec)

	return &App{
		Store:      s,
		Registry:   reg,
		Species:    sp,
		Places:     places,
		Calendar:   cal,
		Reconciler: rec,
		Metrics:    metrics,
		Logger:     logger,
		cfg:        cfg,
	}
}

// Importer builds the Airtable importer over the app's store and reconciler.
func (a *App) Importer() *airtable.Importer {
	client := airtable.NewClient(a.cfg, a.Logger)
	return airtable.NewImporter(client, a.Store, a.Reconciler, a.Metrics, a.Logger.With("component", "airtable"))
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.Store.Close()
}
