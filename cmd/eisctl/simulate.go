package main

import (
	"eiscore/internal/core"
	"eiscore/pkg/domain"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) simulateCmd() *cobra.Command {
	var (
		settings domain.SimulationSettings
		params   []string
	)
	cmd := &cobra.Command{
		Use:   "simulate <location>",
		Short: "Add a circuit simulation to a project",
		Example: "  eisctl simulate cell.json --circuit 'R(RC)' \\\n" +
			"    --param R_1.R=10 --param R_2.R=100 --param C_1.C=1e-6",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if settings.Parameters, err = parseParameters(params); err != nil {
				return err
			}
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				r, err := s.Simulate(cmd.Context(), settings)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s points=%d\n", r.ID, r.Simulation.Settings.Circuit, len(r.Frequencies))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&settings.Circuit, "circuit", "", "circuit description code, e.g. R(RC)")
	f.StringArrayVar(&params, "param", nil, "parameter value as ELEMENT.SYMBOL=VALUE (repeatable)")
	f.Float64Var(&settings.MinFrequency, "min", 0.01, "lowest frequency in Hz")
	f.Float64Var(&settings.MaxFrequency, "max", 1e5, "highest frequency in Hz")
	f.IntVar(&settings.PointsPerDecade, "ppd", 10, "points per decade")
	_ = cmd.MarkFlagRequired("circuit")
	return cmd
}

func parseParameters(args []string) ([]domain.Parameter, error) {
	out := make([]domain.Parameter, 0, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		element, symbol, dotted := strings.Cut(name, ".")
		if !ok || !dotted || element == "" || symbol == "" {
			return nil, fmt.Errorf("parameter %q: want ELEMENT.SYMBOL=VALUE", arg)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", arg, err)
		}
		out = append(out, domain.Parameter{Element: element, Symbol: symbol, Value: v, StdErr: math.NaN()})
	}
	return out, nil
}
