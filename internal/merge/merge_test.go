package merge

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildProject(t *testing.T, label, notes string) domain.State {
	t.Helper()
	g := graph.New(domain.Project{Label: label})
	g.SetNotes(notes)
	s, err := g.AddSeries(domain.Series{
		Label:       "Cell A",
		Frequencies: []float64{1000, 100, 10},
		Real:        []float64{10, 12, 18},
		Imag:        []float64{-2, -5, -9},
		Mask:        map[int]bool{2: true},
	})
	require.NoError(t, err)
	fit, err := g.AddResult(domain.Result{
		Kind:        domain.KindFit,
		SeriesID:    s.ID,
		Mask:        map[int]bool{2: true},
		Frequencies: []float64{1000, 100},
		Real:        []float64{10, 12},
		Imag:        []float64{-2, -5},
		Fit:         &domain.FitOutput{Circuit: "R", Parameters: []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 11}}},
	})
	require.NoError(t, err)
	sim, err := g.AddResult(domain.Result{
		Kind:        domain.KindSimulation,
		Frequencies: []float64{10, 1},
		Real:        []float64{5, 5},
		Imag:        []float64{0, 0},
		Simulation: &domain.SimulationOutput{Settings: domain.SimulationSettings{
			Circuit: "R", Parameters: []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 5}},
			MinFrequency: 1, MaxFrequency: 10, PointsPerDecade: 1,
		}},
	})
	require.NoError(t, err)
	_, err = g.AddPlot(domain.PlotDescriptor{
		Label: "Overview",
		Kind:  domain.PlotNyquist,
		Items: []domain.PlotItem{{Ref: s.ID}, {Ref: fit.ID}, {Ref: sim.ID}, {Ref: "gone"}},
	})
	require.NoError(t, err)
	return g.Export()
}

func TestMergeRewritesIdentifiersAndReferences(t *testing.T) {
	p1 := buildProject(t, "First", "anode notes")
	p2 := buildProject(t, "Second", "")

	merged, rep, err := Merge("Merged", p1, p2)
	require.NoError(t, err)

	require.Equal(t, "Merged", merged.Project.Label)
	require.Equal(t, "[First]\nanode notes", merged.Project.Notes)
	require.Equal(t, p1.EntityCount()+p2.EntityCount(), merged.EntityCount())
	require.Equal(t, 2, rep.DroppedReferences)
	require.Equal(t, 2, rep.Series)
	require.Equal(t, 4, rep.Results)
	require.Equal(t, 2, rep.Plots)

	require.Equal(t, "Cell A", merged.Series[0].Label)
	require.Equal(t, "Cell A (2)", merged.Series[1].Label)
	require.Equal(t, "Overview", merged.Plots[0].Label)
	require.Equal(t, "Overview (2)", merged.Plots[1].Label)

	g, err := graph.FromState(merged)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, subst := range rep.Substitutions {
		for _, id := range subst {
			require.False(t, seen[id], "identifier %s reused", id)
			seen[id] = true
		}
	}

	sources := []domain.State{p1, p2}
	for i, src := range sources {
		srcGraph, err := graph.FromState(src)
		require.NoError(t, err)
		for _, item := range src.Plots[0].Items {
			before, ok := srcGraph.Lookup(item.Ref)
			if !ok {
				continue
			}
			after, ok := g.Lookup(rep.Substitutions[i][item.Ref])
			require.True(t, ok)
			require.Equal(t, before.Type, after.Type)
			if before.Result != nil {
				require.Equal(t, before.Result.Kind, after.Result.Kind)
				require.Equal(t, before.Result.Real, after.Result.Real)
				require.Equal(t, before.Result.CreatedAt, after.Result.CreatedAt)
				if before.Result.Kind.SeriesBound() {
					require.Equal(t, rep.Substitutions[i][before.Result.SeriesID], after.Result.SeriesID)
				}
			}
			if before.Series != nil {
				require.Equal(t, before.Series.Frequencies, after.Series.Frequencies)
				require.Equal(t, before.Series.Mask, after.Series.Mask)
			}
		}
		require.Len(t, merged.Plots[i].Items, 3)
	}
}

func TestMergeLeavesSourcesUntouched(t *testing.T) {
	p1 := buildProject(t, "First", "")
	before := domain.CloneState(p1)
	_, _, err := Merge("Merged", p1, p1)
	require.NoError(t, err)
	require.Equal(t, before, p1)
}

func TestMergeRejectsInconsistentSource(t *testing.T) {
	p1 := buildProject(t, "First", "")
	broken := domain.CloneState(p1)
	broken.Series = nil
	_, _, err := Merge("Merged", p1, broken)
	require.Error(t, err)

	_, _, err = Merge("Merged")
	require.True(t, errors.Is(err, domain.ErrInvalid))
}
