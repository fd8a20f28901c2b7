package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/config"
	"github.com/duck57/poke-db/internal/domain"
)

// env carries what every subcommand needs. withApp opens the wired
// components for the duration of fn.
type env struct {
	cfg     *config.Config
	withApp func(ctx context.Context, fn func(*app.App) error) error
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "nestctl",
		Short:         "Operate the nest report ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		rotationCommand(e),
		reportCommand(e),
		importCommand(e),
		nestsCommand(e),
		historyCommand(e),
		seedCommand(e),
	)
	return root
}

// parseScope reads "kind:id", e.g. "city:1". Blank means everywhere.
func parseScope(s string) (domain.PlaceScope, error) {
	if strings.TrimSpace(s) == "" {
		return domain.PlaceScope{}, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	k := domain.ParseScopeKind(kind)
	if !ok || k == domain.ScopeNone {
		return domain.PlaceScope{}, fmt.Errorf("scope %q: want city:<id>, neighborhood:<id>, region:<id> or park:<id>", s)
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return domain.PlaceScope{}, fmt.Errorf("scope %q: %w", s, err)
	}
	return domain.PlaceScope{Kind: k, ID: uint(n)}, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
