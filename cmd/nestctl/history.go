package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/domain"
)

func historyCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Past residents of a park or past nests of a species",
	}
	cmd.AddCommand(historyParkCommand(e), historySpeciesCommand(e))
	return cmd
}

func historyParkCommand(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "park <name|id>",
		Short: "List a park's residents, newest rotation first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			return e.withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				parks, err := a.Places.MatchParks(ctx, input, domain.PlaceQuery{})
				if err != nil {
					return err
				}
				switch len(parks) {
				case 0:
					return fmt.Errorf("no park matches %q", input)
				case 1:
				default:
					names := make([]string, len(parks))
					for i, p := range parks {
						names[i] = p.String()
					}
					return fmt.Errorf("%q matches %d parks: %s", input, len(parks), strings.Join(names, ", "))
				}

				park := parks[0]
				entries, err := a.Store.ParkHistory(ctx, park.ID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, park.String())
				for _, en := range entries {
					fmt.Fprintf(out, "  rotation %d: %s\n", en.RotationNumber, entryLabel(en))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rotations to show (0 for all)")
	return cmd
}

func historySpeciesCommand(e *env) *cobra.Command {
	var (
		previous, next bool
		scope          string
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "species <name|dex>",
		Short: "List parks a species (and optionally its family) has nested at",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := parseScope(scope)
			if err != nil {
				return err
			}
			input := strings.Join(args, " ")
			return e.withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				family, err := a.Species.MatchFamily(ctx, input, previous, next)
				if err != nil {
					return err
				}
				if len(family) == 0 {
					return fmt.Errorf("no species matches %q", input)
				}
				names := make([]string, len(family))
				for i, s := range family {
					names[i] = s.Name
				}
				entries, err := a.Store.SpeciesHistory(ctx, names, sc, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, strings.Join(names, ", "))
				for _, en := range entries {
					park := fmt.Sprintf("park %d", en.ParkID)
					if en.Park != nil {
						park = en.Park.String()
					}
					fmt.Fprintf(out, "  rotation %d: %s: %s\n", en.RotationNumber, park, entryLabel(en))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&previous, "previous", false, "include earlier evolutions")
	cmd.Flags().BoolVar(&next, "next", false, "include later evolutions")
	cmd.Flags().StringVar(&scope, "scope", "", "limit to a container, e.g. city:1")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show (0 for all)")
	return cmd
}
