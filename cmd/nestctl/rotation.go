package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/duck57/poke-db/internal/app"
	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/rotation"
)

func rotationCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Create, undo and look up rotations",
	}
	cmd.AddCommand(
		rotationCreateCommand(e),
		rotationUndoCommand(e),
		rotationResolveCommand(e),
		rotationListCommand(e),
	)
	return cmd
}

func rotationCreateCommand(e *env) *cobra.Command {
	var (
		note     string
		actingID uint
	)
	cmd := &cobra.Command{
		Use:   "create [date]",
		Short: "Start a new rotation on the nest-shift schedule (default: now)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, live, err := domain.ParseDateExpr(firstArg(args), domain.Now())
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				created, err := a.Calendar.Create(cmd.Context(), rotation.NewRotation{
					Effective: when,
					Live:      live,
					Note:      note,
					ActingID:  actingID,
				})
				if created.Rotation.Number == 0 {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "rotation %d starts %s\n", created.Rotation.Number, created.Rotation.Effective.Format(time.RFC3339))
				for _, p := range created.Permanent {
					if p.Entry != nil {
						fmt.Fprintf(out, "  park %d: %s (%s)\n", p.Entry.ParkID, p.Entry.Label(), p.Code)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note stored with the rotation")
	cmd.Flags().UintVar(&actingID, "as", 0, "id of the submitter making the change")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func rotationUndoCommand(e *env) *cobra.Command {
	var (
		actingID uint
		confirm  bool
	)
	cmd := &cobra.Command{
		Use:   "undo <number>",
		Short: "Delete a rotation with its ledger and reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("rotation number %q: %w", args[0], err)
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				audit, err := a.Calendar.Undo(cmd.Context(), uint(n), actingID, confirm)
				var confirmErr *domain.UndoConfirmationError
				if errors.As(err, &confirmErr) {
					return fmt.Errorf("%w (re-run with --confirm)", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rotation %d removed (audit report %d)\n", n, audit.ID)
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&actingID, "as", 0, "id of the submitter making the change")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "also delete manually entered nests")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func rotationResolveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [date|number]",
		Short: "Show which rotation a date or number refers to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				r, err := a.Calendar.Resolve(cmd.Context(), firstArg(args))
				if err != nil {
					return err
				}
				printRotation(cmd, r)
				return nil
			})
		},
	}
}

func rotationListCommand(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rotations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				rotations, err := a.Calendar.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, r := range rotations {
					printRotation(cmd, r)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum rotations to show (0 for all)")
	return cmd
}

func printRotation(cmd *cobra.Command, r domain.RotationPeriod) {
	line := fmt.Sprintf("rotation %d: %s", r.Number, r.Effective.Format(time.RFC3339))
	if r.Note != "" {
		line += " (" + r.Note + ")"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
