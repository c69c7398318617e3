package main

import (
	"eiscore/internal/core"
	"eiscore/pkg/domain"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Create and inspect projects"}

	var label string
	create := &cobra.Command{
		Use:   "new <location>",
		Short: "Create an empty project document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.workspace(ctx, func(w *core.Workspace) error {
				s, err := w.NewProject(label)
				if err != nil {
					return err
				}
				if err := s.SaveAs(ctx, args[0]); err != nil {
					return err
				}
				p := s.Project()
				return a.emit(p, func(out io.Writer) {
					fmt.Fprintf(out, "created %s %q at %s\n", p.ID, p.Label, p.Path)
				})
			})
		},
	}
	create.Flags().StringVar(&label, "label", "", "project label")

	show := &cobra.Command{
		Use:   "show <location>",
		Short: "Print a project summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				sum := summarize(s.State())
				return a.emit(sum, func(out io.Writer) { printSummary(out, sum) })
			})
		},
	}

	notes := &cobra.Command{
		Use:   "notes <location> <text>",
		Short: "Replace the project notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				return s.SetNotes(cmd.Context(), args[1])
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <location> <label>",
		Short: "Relabel the project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				applied, err := s.Rename(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, applied)
				return nil
			})
		},
	}

	cmd.AddCommand(create, show, notes, rename)
	return cmd
}

type seriesSummary struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Points int    `json:"points"`
	Masked int    `json:"masked"`
	Tests  int    `json:"tests"`
	DRTs   int    `json:"drts"`
	Fits   int    `json:"fits"`
}

type plotSummary struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Kind  domain.PlotKind `json:"kind"`
	Items int             `json:"items"`
}

// projectSummary is the printable view of a project. Result payloads carry
// NaN estimates that JSON cannot represent, so only counts are reported.
type projectSummary struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Notes       string          `json:"notes,omitempty"`
	Path        string          `json:"path"`
	CreatedAt   time.Time       `json:"created_at"`
	Series      []seriesSummary `json:"series"`
	Simulations []string        `json:"simulations"`
	Plots       []plotSummary   `json:"plots"`
}

func summarize(st domain.State) projectSummary {
	p := st.Project
	sum := projectSummary{ID: p.ID, Label: p.Label, Notes: p.Notes, Path: p.Path, CreatedAt: p.CreatedAt}
	for _, s := range st.Series {
		group := st.Results[s.ID]
		sum.Series = append(sum.Series, seriesSummary{
			ID: s.ID, Label: s.Label, Points: s.Len(), Masked: len(s.Mask),
			Tests: len(group.Tests), DRTs: len(group.DRTs), Fits: len(group.Fits),
		})
	}
	for _, r := range st.Simulations {
		sum.Simulations = append(sum.Simulations, r.ID)
	}
	for _, pl := range st.Plots {
		sum.Plots = append(sum.Plots, plotSummary{ID: pl.ID, Label: pl.Label, Kind: pl.Kind, Items: len(pl.Items)})
	}
	return sum
}

func printSummary(out io.Writer, sum projectSummary) {
	fmt.Fprintf(out, "project %s %q\n", sum.ID, sum.Label)
	fmt.Fprintf(out, "  created %s\n", sum.CreatedAt.Format(time.RFC3339))
	if sum.Notes != "" {
		fmt.Fprintf(out, "  notes   %s\n", sum.Notes)
	}
	for _, s := range sum.Series {
		fmt.Fprintf(out, "series %s %q points=%d masked=%d tests=%d drts=%d fits=%d\n",
			s.ID, s.Label, s.Points, s.Masked, s.Tests, s.DRTs, s.Fits)
	}
	for _, id := range sum.Simulations {
		fmt.Fprintf(out, "simulation %s\n", id)
	}
	for _, pl := range sum.Plots {
		fmt.Fprintf(out, "plot %s %q kind=%s items=%d\n", pl.ID, pl.Label, pl.Kind, pl.Items)
	}
}
