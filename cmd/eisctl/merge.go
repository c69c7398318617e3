package main

import (
	"eiscore/internal/core"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (a *app) mergeCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "merge <output> <location> <location>...",
		Short: "Combine projects into a new project document",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.workspace(ctx, func(w *core.Workspace) error {
				ids := make([]string, 0, len(args)-1)
				for _, location := range args[1:] {
					s, err := w.Open(ctx, location)
					if err != nil {
						return err
					}
					ids = append(ids, s.ID())
				}
				merged, report, err := w.Merge(ctx, label, ids...)
				if err != nil {
					return err
				}
				if err := merged.SaveAs(ctx, args[0]); err != nil {
					return err
				}
				return a.emit(report, func(out io.Writer) {
					fmt.Fprintf(out, "merged %d projects into %s: series=%d results=%d plots=%d dropped_refs=%d\n",
						len(ids), args[0], report.Series, report.Results, report.Plots, report.DroppedReferences)
				})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "Merged", "label of the merged project")
	return cmd
}
