package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/domain"
)

func nestsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nests",
		Short: "Show the nest ledger",
	}
	cmd.AddCommand(nestsListCommand(e))
	return cmd
}

func nestsListCommand(e *env) *cobra.Command {
	var (
		when  string
		scope string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the nest list for a rotation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := parseScope(scope)
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				r, err := a.Calendar.Resolve(ctx, when)
				if err != nil {
					return err
				}
				entries, err := a.Store.RotationEntries(ctx, r.Number, sc)
				if err != nil {
					return err
				}
				empty, err := a.Store.EmptyParks(ctx, r.Number, sc)
				if err != nil {
					return err
				}
				renderNestList(cmd.OutOrStdout(), r, entries, empty)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&when, "rotation", "", "rotation number or date expression (default now)")
	cmd.Flags().StringVar(&scope, "scope", "", "limit to a container, e.g. city:1")
	return cmd
}

// renderNestList writes entries grouped under their neighborhood's list
// heading, followed by the parks nobody has reported. Unconfirmed species
// carry a trailing asterisk.
func renderNestList(w io.Writer, r domain.RotationPeriod, entries []domain.LedgerEntry, empty []domain.Park) {
	fmt.Fprintf(w, "Nests for rotation %d (%s)\n", r.Number, r.Effective.Format(time.DateOnly))

	groups := map[string][]string{}
	for _, e := range entries {
		heading, name := "Other", fmt.Sprintf("park %d", e.ParkID)
		if p := e.Park; p != nil {
			heading, name = parkHeading(*p), parkLine(*p)
		}
		groups[heading] = append(groups[heading], fmt.Sprintf("%s: %s", name, entryLabel(e)))
	}
	headings := make([]string, 0, len(groups))
	for h := range groups {
		headings = append(headings, h)
	}
	sort.Strings(headings)
	for _, h := range headings {
		fmt.Fprintf(w, "\n%s\n", h)
		for _, line := range groups[h] {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	if len(empty) > 0 {
		fmt.Fprintf(w, "\nNo reports yet\n")
		for _, p := range empty {
			fmt.Fprintf(w, "  %s\n", parkLine(p))
		}
	}
}

func parkHeading(p domain.Park) string {
	if p.Neighborhood == nil {
		return "Other"
	}
	return p.Neighborhood.ListHeading()
}

func parkLine(p domain.Park) string {
	if p.Private {
		return p.DisplayName() + " (private)"
	}
	return p.DisplayName()
}
