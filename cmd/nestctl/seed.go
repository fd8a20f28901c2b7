package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/store"
)

func seedCommand(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load places, submitters and species from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := store.DecodeSeed(f)
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Store.ApplySeed(cmd.Context(), seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"seeded %d regions, %d cities, %d neighborhoods, %d parks, %d submitters, %d species\n",
					n.Regions, n.Cities, n.Neighborhoods, n.Parks, n.Submitters, n.Species)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
