package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
)

func importCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Pull reports from external sources",
	}
	cmd.AddCommand(importAirtableCommand(e))
	return cmd
}

func importAirtableCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "airtable",
		Short: "Import new Airtable submissions for every configured city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.AirtableAPIKey == "" {
				return errors.New("AIRTABLE_API_KEY is not set")
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				results, err := a.Importer().ImportAll(cmd.Context())
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(out, "%s: failed: %v\n", r.City.Name, r.Err)
						continue
					}
					c := r.Cursor
					fmt.Fprintf(out, "%s: %d rows to serial %d (new %d, confirmed %d, conflicts %d, duplicates %d, overrides %d, errors %d)\n",
						r.City.Name, c.Total, c.EndRow, c.FirstReports, c.Confirmations, c.Conflicts, c.Duplicates, c.Overrides, c.Errors)
				}
				return err
			})
		},
	}
}
