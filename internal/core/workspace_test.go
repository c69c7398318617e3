package core

import (
	"bytes"
	"context"
	"eiscore/internal/config"
	"eiscore/internal/infra/persistence/sqlite"
	"eiscore/internal/plot"
	"eiscore/pkg/domain"
	"io"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	w := newEnv(t, nil).workspace(t, WithRegisterer(reg))
	s, err := w.NewProject("Plots")
	require.NoError(t, err)
	a, err := s.AddSeries(ctx, tenPoints("A"))
	require.NoError(t, err)
	b, err := s.AddSeries(ctx, tenPoints("B"))
	require.NoError(t, err)
	res, err := s.Analyze(ctx, a.ID, testSettings(1))
	require.NoError(t, err)

	p, err := s.NewPlot(ctx, "overview", domain.PlotNyquist)
	require.NoError(t, err)
	require.NoError(t, s.AddPlotItems(ctx, p.ID, a.ID, b.ID, res.ID, a.ID))
	p, err = s.Plot(p.ID)
	require.NoError(t, err)
	require.Len(t, p.Items, 3, "duplicates are skipped")
	assert.True(t, p.Items[2].Style.ShowLegend)
	assert.Equal(t, 2, p.Items[2].Style.ZOrder)
	require.ErrorIs(t, s.AddPlotItems(ctx, p.ID, p.ID), domain.ErrInvalid, "plots cannot reference plots")

	require.NoError(t, s.SetItemStyle(ctx, p.ID, b.ID, domain.Style{Marker: 2, ShowLine: true, ZOrder: -1}))
	_, resolution, err := s.ResolvePlot(p.ID)
	require.NoError(t, err)
	require.Len(t, resolution.Items, 3)
	assert.Equal(t, b.ID, resolution.Items[0].Ref, "lowest z-order first")
	assert.Equal(t, plot.SourceSeries, resolution.Items[0].Source)

	require.NoError(t, s.DeleteSeries(ctx, b.ID))
	_, resolution, err = s.ResolvePlot(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, resolution.Omitted)
	assert.Len(t, resolution.Items, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.danglingRefs))

	removed, err := s.PrunePlot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	removed, err = s.PrunePlot(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	p, _ = s.Plot(p.ID)
	assert.Len(t, p.Items, 3, "undoing the prune restores the dangling reference")
	_, err = s.Undo(ctx)
	require.NoError(t, err)
	_, resolution, err = s.ResolvePlot(p.ID)
	require.NoError(t, err)
	assert.Empty(t, resolution.Omitted, "undoing the delete revives the reference")

	require.NoError(t, s.RemovePlotItems(ctx, p.ID, res.ID))
	require.ErrorIs(t, s.RemovePlotItems(ctx, p.ID, "missing"), domain.ErrInvalid)

	var buf bytes.Buffer
	require.NoError(t, s.ExportPlot(p.ID, &buf))
	assert.Equal(t, []byte("PK"), buf.Bytes()[:2])
	require.ErrorIs(t, s.ExportPlot("missing", io.Discard), domain.ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.mutations.WithLabelValues("prune_plot")))
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.replays.WithLabelValues("undo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.engineCalls.WithLabelValues(string(domain.KindTest), "ok")))
}

func TestMergeCombinesOpenProjects(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	left, err := w.NewProject("Left")
	require.NoError(t, err)
	right, err := w.NewProject("Right")
	require.NoError(t, err)
	ls, err := left.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	_, err = left.Analyze(ctx, ls.ID, testSettings(1))
	require.NoError(t, err)
	_, err = right.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	leftBefore, rightBefore := left.State(), right.State()

	merged, report, err := w.Merge(ctx, "Left", left.ID(), right.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Series)
	assert.Equal(t, 1, report.Results)
	assert.Equal(t, "Left (2)", merged.Project().Label)
	assert.True(t, merged.Dirty())
	assert.Len(t, merged.ListSeries(), 2)
	requireSameState(t, leftBefore, left.State())
	requireSameState(t, rightBefore, right.State())
	assert.Len(t, w.Sessions(), 3)

	_, _, err = w.Merge(ctx, "", left.ID(), left.ID())
	require.ErrorIs(t, err, domain.ErrInvalid)
	_, _, err = w.Merge(ctx, "", "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveAsRejectsLocationOfAnotherProject(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	one, err := w.NewProject("one")
	require.NoError(t, err)
	two, err := w.NewProject("two")
	require.NoError(t, err)
	location := filepath.Join(t.TempDir(), "shared.json")
	require.NoError(t, one.SaveAs(ctx, location))
	require.ErrorIs(t, two.SaveAs(ctx, location), domain.ErrInvalid)
	require.NoError(t, one.SaveAs(ctx, location), "saving over its own location is fine")
}

func TestSQLiteDocumentStore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *config.Config) { c.Storage.Driver = config.StorageSQLite })
	docs, err := OpenDocumentStore(ctx, e.cfg)
	require.NoError(t, err)
	store, ok := docs.(*sqlite.Store)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(e.cfg.StateDir, "projects.db"), store.Path())
	require.NoError(t, store.Close())

	w := e.workspace(t)
	s, err := w.NewProject("Catalogued")
	require.NoError(t, err)
	_, err = s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	require.NoError(t, s.SaveAs(ctx, "catalogued"))
	want := s.State()
	require.NoError(t, w.Shutdown(ctx))

	reopened, err := e.workspace(t).Open(ctx, "catalogued")
	require.NoError(t, err)
	assert.Equal(t, want.Series, reopened.State().Series)

	e.cfg.Storage.Driver = "tape"
	_, err = OpenDocumentStore(ctx, e.cfg)
	require.Error(t, err)
}
