// Command nestctl is the operator CLI for the nest ledger: rotations, manual
// reports, Airtable imports, nest lists, history and seeding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/config"
	"github.com/duck57/poke-db/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "nestctl: load config:", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	e := &env{
		cfg: cfg,
		withApp: func(ctx context.Context, fn func(*app.App) error) error {
			a, err := app.Open(ctx, cfg, metrics, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(a)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand(e).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
