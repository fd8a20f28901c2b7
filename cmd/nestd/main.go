package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/duck57/poke-db/internal/adapter/http"
	kafkaadapter "github.com/duck57/poke-db/internal/adapter/kafka"
	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/config"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer a.Close()

	checks := httpadapter.Checks{{Name: "store", Check: a.Store}}
	g, gctx := errgroup.WithContext(ctx)

	// Streamed reports (feature-flagged via KAFKA_ENABLED).
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer closeLogged(logger, "kafka reader", reader.Close)
		defer closeLogged(logger, "kafka writer", writer.Close)

		processor := pipeline.NewProcessor(a.Reconciler, logger)
		p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)
		checks = append(checks, httpadapter.Check{Name: "pipeline", Check: p})
		g.Go(func() error { return p.Run(gctx) })
	} else {
		logger.Info("kafka ingestion disabled")
	}

	// Periodic Airtable import (feature-flagged via AIRTABLE_ENABLED / AIRTABLE_API_KEY).
	if cfg.AirtableEnabled {
		importer := a.Importer()
		g.Go(func() error { return importer.Poll(gctx, cfg.AirtableInterval) })
		logger.Info("airtable import enabled", "interval", cfg.AirtableInterval)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, logger)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}

func closeLogged(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
