package main

import (
	"eiscore/internal/core"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) recoverCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "recover", Short: "Inspect and restore recovery snapshots"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects with snapshots newer than their saved document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.workspace(cmd.Context(), func(w *core.Workspace) error {
				candidates, err := w.RecoveryCandidates(cmd.Context())
				if err != nil {
					return err
				}
				return a.emit(candidates, func(out io.Writer) {
					if len(candidates) == 0 {
						fmt.Fprintln(out, "nothing to recover")
					}
					for _, c := range candidates {
						fmt.Fprintf(out, "%s %q %s snapshot=%s location=%s\n",
							c.ProjectID, c.Label, c.Reason, c.SnapshotAt.Format(time.RFC3339), c.Location)
					}
				})
			})
		},
	}

	accept := &cobra.Command{
		Use:   "accept <project-id> [location]",
		Short: "Restore a snapshot and save it",
		Long: "Restore a snapshot and save it. Without a location the snapshot is written\n" +
			"back to the project's own document.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.workspace(ctx, func(w *core.Workspace) error {
				s, err := w.Recover(ctx, args[0])
				if err != nil {
					return err
				}
				if len(args) == 2 {
					err = s.SaveAs(ctx, args[1])
				} else {
					err = s.Save(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "recovered %s to %s\n", s.ID(), s.Project().Path)
				return nil
			})
		},
	}

	discard := &cobra.Command{
		Use:   "discard <project-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.workspace(cmd.Context(), func(w *core.Workspace) error {
				return w.DiscardRecovery(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(list, accept, discard)
	return cmd
}
