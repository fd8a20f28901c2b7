package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/domain"
)

var errRejected = errors.New("report rejected")

func reportCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "File nest reports by hand",
	}
	cmd.AddCommand(reportSubmitCommand(e))
	return cmd
}

func reportSubmitCommand(e *env) *cobra.Command {
	var (
		sub      domain.Submission
		when     string
		scope    string
		rotation uint
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Reconcile one report and print the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, _, err := domain.ParseDateExpr(when, domain.Now())
			if err != nil {
				return err
			}
			sub.Timestamp = ts
			if sub.PlaceScope, err = parseScope(scope); err != nil {
				return err
			}
			if rotation > 0 {
				sub.Rotation = &rotation
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				out, err := a.Reconciler.Submit(cmd.Context(), sub)
				if err != nil {
					return err
				}
				printOutcome(cmd, out)
				if out.Code == domain.OutcomeError {
					return errRejected
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&sub.Name, "name", "", "reporter's display name")
	f.StringVar(&sub.Place, "place", "", "park name or id")
	f.StringVar(&sub.Species, "species", "", `species name or dex number; "Name|1" forces confirmation, "Name*" searches every species`)
	f.UintVar(&sub.SubmitterID, "as", 0, "submitter id")
	f.StringVar(&sub.Server, "server", "nestctl", "source tag stored on the report")
	f.StringVar(&when, "time", "", "when the nest was seen (date expression, default now)")
	f.UintVar(&rotation, "rotation", 0, "pin the report to a rotation number")
	f.StringVar(&scope, "scope", "", "limit place search, e.g. city:1")
	f.BoolVar(&sub.ForceConfirmation, "force", false, "confirm the nest immediately")
	f.BoolVar(&sub.SearchAllSpecies, "all-species", false, "match species that do not nest")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func printOutcome(cmd *cobra.Command, out domain.ReportOutcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d %s\n", out.Code, out.Code)
	if e := out.Entry; e != nil {
		fmt.Fprintf(w, "  rotation %d park %d: %s\n", e.RotationNumber, e.ParkID, entryLabel(*e))
	}
	for _, field := range out.Errors.Fields() {
		fmt.Fprintf(w, "  %s: %s\n", field, out.Errors[field])
	}
}

// entryLabel marks unconfirmed entries with a trailing asterisk.
func entryLabel(e domain.LedgerEntry) string {
	if e.Confirmed {
		return e.Label()
	}
	return e.Label() + "*"
}
