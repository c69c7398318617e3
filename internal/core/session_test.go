package core

import (
	"context"
	"eiscore/internal/codec"
	"eiscore/internal/config"
	"eiscore/internal/graph"
	"eiscore/internal/history"
	"eiscore/internal/recovery"
	"eiscore/pkg/domain"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskTestThenUndoTwice(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	s, err := w.NewProject("Cells")
	require.NoError(t, err)

	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	require.NoError(t, s.SetMask(ctx, series.ID, map[int]bool{3: true}))
	res, err := s.Analyze(ctx, series.ID, testSettings(2))
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{3: true}, res.Mask)
	assert.Len(t, res.Frequencies, 9)
	require.Len(t, s.Results(series.ID, domain.KindTest), 1)

	desc, err := s.Undo(ctx)
	require.NoError(t, err)
	assert.Contains(t, desc, "add test")
	_, err = s.Undo(ctx)
	require.NoError(t, err)

	mask, err := s.Mask(series.ID)
	require.NoError(t, err)
	assert.False(t, mask[3])
	assert.Empty(t, s.Results(series.ID, domain.KindTest))

	_, err = s.Redo(ctx)
	require.NoError(t, err)
	mask, _ = s.Mask(series.ID)
	assert.True(t, mask[3])
}

func TestSnapshotEveryTwoMutations(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *config.Config) { c.Snapshot.Interval = 2 })
	w := e.workspace(t)
	s, err := w.NewProject("Cells")
	require.NoError(t, err)

	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	_, err = e.blobs.Head(ctx, recovery.Key(s.ID()))
	require.Error(t, err, "one mutation must not snapshot yet")

	require.NoError(t, s.SetMask(ctx, series.ID, map[int]bool{1: true}))
	snap, err := w.rec.Load(ctx, s.ID())
	require.NoError(t, err)
	requireSameState(t, s.State(), snap)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, w.rec.Pending(s.ID()), "undo counts toward the cadence")
}

func TestSaveAndReopenInFreshWorkspace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	w := e.workspace(t)
	s, err := w.NewProject("Cells")
	require.NoError(t, err)
	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	require.NoError(t, s.SetMask(ctx, series.ID, map[int]bool{0: true}))
	_, err = s.Analyze(ctx, series.ID, testSettings(1))
	require.NoError(t, err)
	_, err = s.Simulate(ctx, domain.SimulationSettings{
		Circuit:         "R",
		Parameters:      []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 5}},
		MinFrequency:    1,
		MaxFrequency:    1000,
		PointsPerDecade: 3,
	})
	require.NoError(t, err)
	plot, err := s.NewPlot(ctx, "overview", domain.PlotNyquist)
	require.NoError(t, err)
	require.NoError(t, s.AddPlotItems(ctx, plot.ID, series.ID))

	require.ErrorIs(t, s.Save(ctx), domain.ErrInvalid, "save needs a location first")
	location := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, s.SaveAs(ctx, location))
	assert.False(t, s.Dirty())
	assert.Equal(t, location, s.Project().Path)
	assert.Equal(t, []string{location}, w.Recent())
	before := s.State()
	require.NoError(t, w.Shutdown(ctx))

	fresh := e.workspace(t)
	reopened, err := fresh.Open(ctx, location)
	require.NoError(t, err)
	require.NoError(t, codec.EquivalentStates(before, reopened.State()))

	again, err := fresh.Open(ctx, location)
	require.NoError(t, err)
	assert.Same(t, reopened, again)
}

func TestOpenFailureOpensNothing(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	_, err := w.Open(ctx, filepath.Join(t.TempDir(), "missing.json"))
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "load", pe.Op)
	assert.Empty(t, w.Sessions())
}

func TestEngineFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	s, err := w.NewProject("")
	require.NoError(t, err)
	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	_, before := s.History()

	_, err = s.Analyze(ctx, series.ID, testSettings(-1))
	var ee *domain.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, domain.EngineCodeNonConvergence, ee.Code)
	_, after := s.History()
	assert.Equal(t, before, after)
	assert.Empty(t, s.Results(series.ID, domain.KindTest))

	_, err = s.Analyze(ctx, series.ID, domain.Settings{})
	require.ErrorIs(t, err, domain.ErrInvalid)
	require.NoError(t, s.SetMask(ctx, series.ID, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true}))
	_, err = s.Analyze(ctx, series.ID, testSettings(1))
	require.ErrorIs(t, err, domain.ErrInvalid)
}

func TestAnalyzeBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	w := e.workspace(t)
	s, err := w.NewProject("Batch")
	require.NoError(t, err)
	a, err := s.AddSeries(ctx, tenPoints("A"))
	require.NoError(t, err)
	b, err := s.AddSeries(ctx, tenPoints("B"))
	require.NoError(t, err)

	out := s.AnalyzeBatch(ctx, []Job{
		{SeriesID: a.ID, Settings: testSettings(1)},
		{SeriesID: b.ID, Settings: testSettings(-1)},
		{SeriesID: "nope", Settings: testSettings(1)},
		{SeriesID: b.ID, Settings: testSettings(2)},
	})
	require.Len(t, out, 4)
	require.NoError(t, out[0].Err)
	assert.Equal(t, a.ID, out[0].Result.SeriesID)
	var ee *domain.EngineError
	require.ErrorAs(t, out[1].Err, &ee)
	require.ErrorIs(t, out[2].Err, domain.ErrNotFound)
	require.NoError(t, out[3].Err)
	assert.Equal(t, int32(3), e.calls.Load())
	assert.Len(t, s.Results(b.ID, domain.KindTest), 1)
}

func TestExploreThenAccept(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	s, err := w.NewProject("Explore")
	require.NoError(t, err)
	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)

	candidates, err := s.Explore(ctx, series.ID, testSettings(3))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Empty(t, s.Results(series.ID, domain.KindTest), "candidates are not recorded")

	accepted, err := s.AcceptCandidate(ctx, candidates[1])
	require.NoError(t, err)
	assert.NotEmpty(t, accepted.ID)
	assert.Equal(t, 20.0, accepted.Test.Parameters[0].Value)
	assert.Len(t, s.Results(series.ID, domain.KindTest), 1)
}

func TestProjectLabelsAreUniqueAmongOpenProjects(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	first, err := w.NewProject("Cell")
	require.NoError(t, err)
	second, err := w.NewProject("Cell")
	require.NoError(t, err)
	assert.Equal(t, "Cell (2)", second.Project().Label)

	label, err := second.Rename(ctx, "Cell")
	require.NoError(t, err)
	assert.Equal(t, "Cell (2)", label)

	_, err = first.Rename(ctx, "Anode")
	require.NoError(t, err)
	label, err = second.Rename(ctx, "Cell")
	require.NoError(t, err)
	assert.Equal(t, "Cell", label)

	require.NoError(t, w.Close(ctx, first.ID()))
	_, err = first.Rename(ctx, "x")
	require.ErrorIs(t, err, domain.ErrInvalid)
	third, err := w.NewProject("Anode")
	require.NoError(t, err)
	assert.Equal(t, "Anode", third.Project().Label)
}

func TestUndoRenameKeepsLabelsUnique(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	p, err := w.NewProject("A")
	require.NoError(t, err)
	_, err = p.Rename(ctx, "B")
	require.NoError(t, err)
	q, err := w.NewProject("A")
	require.NoError(t, err)
	require.Equal(t, "A", q.Project().Label)

	desc, err := p.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, `rename project to "B"`, desc)
	assert.Equal(t, "A (2)", p.Project().Label)
	assert.Equal(t, "A", q.Project().Label)

	_, err = p.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", p.Project().Label)
	_, err = p.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A (2)", p.Project().Label)

	third, err := w.NewProject("A (2)")
	require.NoError(t, err)
	assert.NotEqual(t, p.Project().Label, third.Project().Label)
}

// failingRevert applies cleanly and cannot be undone.
type failingRevert struct{}

func (failingRevert) Description() string       { return "broken" }
func (failingRevert) Apply(*graph.Graph) error  { return nil }
func (failingRevert) Revert(*graph.Graph) error { return errors.New("inverse failed") }

var _ history.Entry = failingRevert{}

func TestCorruptedHistoryIsReadOnlyUntilReload(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t)
	s, err := w.NewProject("Fragile")
	require.NoError(t, err)
	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	location := filepath.Join(t.TempDir(), "fragile.json")
	require.NoError(t, s.SaveAs(ctx, location))

	s.mu.Lock()
	require.NoError(t, s.record(ctx, "broken", failingRevert{}))
	s.mu.Unlock()

	_, err = s.Undo(ctx)
	require.ErrorIs(t, err, domain.ErrCorrupted)
	require.ErrorIs(t, s.Err(), domain.ErrCorrupted)
	_, err = s.AddSeries(ctx, tenPoints("T"))
	require.ErrorIs(t, err, domain.ErrCorrupted)
	require.ErrorIs(t, s.Save(ctx), domain.ErrCorrupted)
	_, err = s.Redo(ctx)
	require.ErrorIs(t, err, domain.ErrCorrupted)

	require.NoError(t, s.Reload(ctx))
	require.NoError(t, s.Err())
	assert.False(t, s.CanUndo())
	_, err = s.Series(series.ID)
	require.NoError(t, err)
	_, err = s.AddSeries(ctx, tenPoints("T"))
	require.NoError(t, err)
}

func TestShutdownSnapshotsUnsavedProjectsForRecovery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	w := e.workspace(t)
	s, err := w.NewProject("Crashy")
	require.NoError(t, err)
	_, err = s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	clean, err := w.NewProject("Clean")
	require.NoError(t, err)
	_ = clean
	want := s.State()
	require.NoError(t, w.Shutdown(ctx))
	_, err = w.NewProject("late")
	require.Error(t, err)

	next := e.workspace(t)
	candidates, err := next.RecoveryCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1, "only the project with unsaved changes is snapshotted")
	assert.Equal(t, s.ID(), candidates[0].ProjectID)
	assert.Equal(t, recovery.ReasonUnsaved, candidates[0].Reason)

	recovered, err := next.Recover(ctx, s.ID())
	require.NoError(t, err)
	requireSameState(t, want, recovered.State())
	assert.True(t, recovered.Dirty())
	assert.False(t, recovered.CanUndo())

	candidates, err = next.RecoveryCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates, "open projects are not offered")

	require.NoError(t, next.Close(ctx, s.ID()))
	candidates, err = next.RecoveryCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates, "closing discards the snapshot")
}

func TestRecoverReplacesOpenProject(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *config.Config) { c.Snapshot.Interval = 1 })
	w := e.workspace(t)
	s, err := w.NewProject("Live")
	require.NoError(t, err)
	_, err = s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	snapshot := s.State()

	s.mu.Lock()
	_, err = s.g.AddSeries(tenPoints("unrecorded"))
	s.mu.Unlock()
	require.NoError(t, err)

	got, err := w.Recover(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	requireSameState(t, snapshot, s.State())
	assert.False(t, s.CanUndo())
}

func TestSaveWriteFailureLeavesLocation(t *testing.T) {
	ctx := context.Background()
	w := newEnv(t, nil).workspace(t, WithDocumentStore(brokenDocs{}))
	s, err := w.NewProject("P")
	require.NoError(t, err)
	_, err = s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err)
	err = s.SaveAs(ctx, "somewhere.json")
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "save", pe.Op)
	assert.Empty(t, s.Project().Path)
	assert.True(t, s.Dirty())
}

type brokenDocs struct{}

func (brokenDocs) Write(context.Context, string, []byte) error { return errors.New("read-only volume") }
func (brokenDocs) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("read-only volume")
}
func (brokenDocs) Stat(context.Context, string) (domain.DocumentInfo, bool, error) {
	return domain.DocumentInfo{}, false, nil
}

func TestSnapshotFailureDoesNotBlockEditing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *config.Config) { c.Snapshot.Interval = 1 })
	w := e.workspace(t)
	s, err := w.NewProject("Flaky")
	require.NoError(t, err)

	e.blobs.FailWrites(errors.New("disk full"))
	series, err := s.AddSeries(ctx, tenPoints("S"))
	require.NoError(t, err, "the mutation stands even though the snapshot failed")
	require.ErrorContains(t, s.SnapshotErr(), "disk full")
	assert.Equal(t, 1, w.rec.Pending(s.ID()), "the counter is kept so the next mutation retries")

	e.blobs.FailWrites(nil)
	require.NoError(t, s.SetMask(ctx, series.ID, map[int]bool{2: true}))
	require.NoError(t, s.SnapshotErr())
	snap, err := w.rec.Load(ctx, s.ID())
	require.NoError(t, err)
	requireSameState(t, s.State(), snap)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.snapshotFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.snapshotWrites))
}
