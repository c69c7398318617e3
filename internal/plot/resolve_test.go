package plot

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	g      *graph.Graph
	series domain.Series
	fit    domain.Result
	drt    domain.Result
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g := graph.New(domain.Project{Label: "Cell"})
	s, err := g.AddSeries(domain.Series{
		Label:       "Cell A",
		Frequencies: []float64{100, 10, 1},
		Real:        []float64{3, 4, 0},
		Imag:        []float64{-4, -3, -2},
	})
	require.NoError(t, err)
	fit, err := g.AddResult(domain.Result{
		Kind:        domain.KindFit,
		SeriesID:    s.ID,
		Frequencies: []float64{100, 10, 1},
		Real:        []float64{3, 4, 1},
		Imag:        []float64{-4, -3, -1},
		Fit:         &domain.FitOutput{Circuit: "R", Parameters: []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 3}}},
	})
	require.NoError(t, err)
	drt, err := g.AddResult(domain.Result{
		Kind:     domain.KindDRT,
		SeriesID: s.ID,
		DRT:      &domain.DRTOutput{Tau: []float64{1e-3, 1e-2}, Gamma: []float64{0.5, 2}},
	})
	require.NoError(t, err)
	return fixture{g: g, series: s, fit: fit, drt: drt}
}

func TestResolveNyquistAppliesCurrentMask(t *testing.T) {
	f := newFixture(t)
	_, err := f.g.SetMask(f.series.ID, map[int]bool{2: true})
	require.NoError(t, err)

	res := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotNyquist, Items: []domain.PlotItem{
		{Ref: f.series.ID, Style: domain.Style{ShowLegend: true}},
		{Ref: f.fit.ID},
	}})
	require.Len(t, res.Items, 2)
	assert.Empty(t, res.Omitted)

	series := res.Items[0]
	assert.Equal(t, SourceSeries, series.Source)
	assert.Equal(t, []float64{3, 4}, series.X)
	assert.Equal(t, []float64{4, 3}, series.Y)
	assert.True(t, series.ShowLegend)
	assert.False(t, series.Stale)

	fit := res.Items[1]
	assert.Equal(t, "fit", fit.Source)
	assert.Equal(t, "Cell A [fit: R]", fit.Label)
	assert.Len(t, fit.X, 3)
	assert.True(t, fit.Stale, "fit computed before the mask change is stale")
}

func TestResolveBodeCoordinates(t *testing.T) {
	f := newFixture(t)
	mag := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotBodeMagnitude, Items: []domain.PlotItem{{Ref: f.series.ID}}})
	require.Len(t, mag.Items, 1)
	assert.Equal(t, []float64{100, 10, 1}, mag.Items[0].X)
	assert.InDeltaSlice(t, []float64{5, 5, 2}, mag.Items[0].Y, 1e-12)

	phase := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotBodePhase, Items: []domain.PlotItem{{Ref: f.series.ID}}})
	require.Len(t, phase.Items, 1)
	assert.InDelta(t, 90, phase.Items[0].Y[2], 1e-12)
	assert.InDelta(t, math.Atan2(4, 3)*180/math.Pi, phase.Items[0].Y[0], 1e-12)
}

func TestResolveRealImaginaryProducesTwoItems(t *testing.T) {
	f := newFixture(t)
	res := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotRealImaginary, Items: []domain.PlotItem{{Ref: f.series.ID}}})
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Cell A (real)", res.Items[0].Label)
	assert.Equal(t, []float64{3, 4, 0}, res.Items[0].Y)
	assert.Equal(t, "Cell A (-imag)", res.Items[1].Label)
	assert.Equal(t, []float64{4, 3, 2}, res.Items[1].Y)
	assert.Equal(t, f.series.ID, res.Items[1].Ref)
}

func TestResolveDRTPlot(t *testing.T) {
	f := newFixture(t)
	res := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotDRT, Items: []domain.PlotItem{
		{Ref: f.series.ID}, {Ref: f.drt.ID}, {Ref: f.fit.ID},
	}})
	require.Len(t, res.Items, 1)
	assert.Equal(t, []float64{1e-3, 1e-2}, res.Items[0].X)
	assert.Equal(t, []float64{0.5, 2}, res.Items[0].Y)
	assert.Equal(t, []string{f.series.ID, f.fit.ID}, res.Incompatible)

	onNyquist := Resolve(f.g, domain.PlotDescriptor{Kind: domain.PlotNyquist, Items: []domain.PlotItem{{Ref: f.drt.ID}}})
	assert.Equal(t, []string{f.drt.ID}, onNyquist.Incompatible)
}

func TestResolveOmitsDanglingAndOrdersByZ(t *testing.T) {
	f := newFixture(t)
	d := domain.PlotDescriptor{Kind: domain.PlotNyquist, Items: []domain.PlotItem{
		{Ref: f.fit.ID, Style: domain.Style{ZOrder: 2}},
		{Ref: "deleted"},
		{Ref: f.series.ID, Style: domain.Style{ZOrder: 1, Marker: 4}},
	}}
	res := Resolve(f.g, d)
	assert.Equal(t, []string{"deleted"}, res.Omitted)
	require.Len(t, res.Items, 2)
	assert.Equal(t, f.series.ID, res.Items[0].Ref)
	assert.Equal(t, 4, res.Items[0].Style.Marker)
	assert.Equal(t, f.fit.ID, res.Items[1].Ref)

	_, err := f.g.DeleteSeries(f.series.ID)
	require.NoError(t, err)
	res = Resolve(f.g, d)
	assert.Empty(t, res.Items)
	assert.ElementsMatch(t, []string{f.fit.ID, "deleted", f.series.ID}, res.Omitted)
}
