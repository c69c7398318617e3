package main

import (
	"eiscore/internal/core"
	"eiscore/pkg/domain"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type resolvedItem struct {
	Ref    string `json:"ref"`
	Label  string `json:"label"`
	Source string `json:"source"`
	Points int    `json:"points"`
	Stale  bool   `json:"stale,omitempty"`
}

type resolvedPlot struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Kind         string         `json:"kind"`
	Items        []resolvedItem `json:"items"`
	Omitted      []string       `json:"omitted,omitempty"`
	Incompatible []string       `json:"incompatible,omitempty"`
}

func (a *app) plotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plot", Short: "Manage plot descriptors"}

	var kind string
	create := &cobra.Command{
		Use:   "new <location> <label>",
		Short: "Add an empty plot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				p, err := s.NewPlot(cmd.Context(), args[1], domain.PlotKind(kind))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %q\n", p.ID, p.Label)
				return nil
			})
		},
	}
	create.Flags().StringVar(&kind, "kind", string(domain.PlotNyquist),
		"nyquist, bode-magnitude, bode-phase, real-imaginary or drt")

	add := &cobra.Command{
		Use:   "add <location> <plot> <ref>...",
		Short: "Reference series or results from a plot",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				return s.AddPlotItems(cmd.Context(), args[1], args[2:]...)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <location> <plot> <ref>...",
		Short: "Drop references from a plot",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				return s.RemovePlotItems(cmd.Context(), args[1], args[2:]...)
			})
		},
	}

	prune := &cobra.Command{
		Use:   "prune <location> <plot>",
		Short: "Drop references whose entity no longer exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				n, err := s.PrunePlot(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %d references\n", n)
				return nil
			})
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <location> <plot>",
		Short: "Show what a plot would draw",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				p, res, err := s.ResolvePlot(args[1])
				if err != nil {
					return err
				}
				view := resolvedPlot{ID: p.ID, Label: p.Label, Kind: string(p.Kind),
					Omitted: res.Omitted, Incompatible: res.Incompatible}
				for _, it := range res.Items {
					view.Items = append(view.Items, resolvedItem{Ref: it.Ref, Label: it.Label, Source: it.Source, Points: len(it.X), Stale: it.Stale})
				}
				return a.emit(view, func(out io.Writer) { printResolved(out, view) })
			})
		},
	}

	export := &cobra.Command{
		Use:   "export <location> <plot> <output.xlsx>",
		Short: "Write the resolved plot data to a workbook",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) (err error) {
				f, err := os.Create(args[2])
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				return s.ExportPlot(args[1], f)
			})
		},
	}

	cmd.AddCommand(create, add, remove, prune, resolve, export)
	return cmd
}

func printResolved(out io.Writer, v resolvedPlot) {
	fmt.Fprintf(out, "plot %s %q kind=%s\n", v.ID, v.Label, v.Kind)
	for _, it := range v.Items {
		stale := ""
		if it.Stale {
			stale = " stale"
		}
		fmt.Fprintf(out, "  %s %q %s points=%d%s\n", it.Ref, it.Label, it.Source, it.Points, stale)
	}
	for _, ref := range v.Omitted {
		fmt.Fprintf(out, "  missing %s\n", ref)
	}
	for _, ref := range v.Incompatible {
		fmt.Fprintf(out, "  cannot draw %s on %s\n", ref, v.Kind)
	}
}
