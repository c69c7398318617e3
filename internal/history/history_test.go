package history

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func newGraph() *graph.Graph {
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("e%d", n)
	}
	clock := func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return graph.New(domain.Project{Label: "p"}, graph.WithIDFunc(ids), graph.WithClock(clock))
}

func tenPoints(label string) domain.Series {
	s := domain.Series{Label: label}
	for i := 0; i < 10; i++ {
		s.Frequencies = append(s.Frequencies, float64(10000/(i+1)))
		s.Real = append(s.Real, float64(10+i))
		s.Imag = append(s.Imag, float64(-i))
	}
	return s
}

func testResult(seriesID string, mask map[int]bool) domain.Result {
	return domain.Result{
		Kind:     domain.KindTest,
		SeriesID: seriesID,
		Mask:     mask,
		Test:     &domain.TestOutput{Circuit: "R", Parameters: []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 1}}},
	}
}

func TestMaskThenTestThenUndoTwice(t *testing.T) {
	g := newGraph()
	h := New(0)
	add := AddSeries(tenPoints("S"))
	if err := h.Record(g, add); err != nil {
		t.Fatalf("add series: %v", err)
	}
	s := add.Series()
	if err := h.Record(g, SetMask(s.ID, map[int]bool{3: true})); err != nil {
		t.Fatalf("mask: %v", err)
	}
	mask, _ := g.Mask(s.ID)
	if err := h.Record(g, AddResult(testResult(s.ID, mask))); err != nil {
		t.Fatalf("test: %v", err)
	}
	for i := 0; i < 2; i++ {
		if e, err := h.Undo(g); err != nil || e == nil {
			t.Fatalf("undo %d: %v %v", i, e, err)
		}
	}
	mask, _ = g.Mask(s.ID)
	if mask[3] {
		t.Fatalf("index 3 still masked")
	}
	if n := len(g.ListResults(s.ID, domain.KindTest)); n != 0 {
		t.Fatalf("expected zero test results, got %d", n)
	}
	if !h.CanUndo() || !h.CanRedo() || h.Cursor() != 1 || h.Len() != 3 {
		t.Fatalf("unexpected cursor state %d/%d", h.Cursor(), h.Len())
	}
}

func TestUndoRedoNoOpAtEnds(t *testing.T) {
	g := newGraph()
	h := New(0)
	if e, err := h.Undo(g); e != nil || err != nil {
		t.Fatalf("undo on empty history: %v %v", e, err)
	}
	if err := h.Record(g, SetNotes("x")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if e, err := h.Redo(g); e != nil || err != nil {
		t.Fatalf("redo at end: %v %v", e, err)
	}
}

func TestRecordDiscardsForwardTail(t *testing.T) {
	g := newGraph()
	h := New(0)
	h.Record(g, SetNotes("a"))
	h.Record(g, SetNotes("b"))
	h.Undo(g)
	h.Record(g, SetNotes("c"))
	if h.Len() != 2 || h.CanRedo() {
		t.Fatalf("forward tail not discarded: len=%d", h.Len())
	}
	h.Undo(g)
	if g.Project().Notes != "a" {
		t.Fatalf("notes = %q", g.Project().Notes)
	}
}

func TestFailedApplyRecordsNothing(t *testing.T) {
	g := newGraph()
	h := New(0)
	err := h.Record(g, DeleteSeries("missing"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if h.Len() != 0 {
		t.Fatalf("failed entry was recorded")
	}
}

func TestDeleteSeriesUndoRestoresResults(t *testing.T) {
	g := newGraph()
	h := New(0)
	add := AddSeries(tenPoints("S"))
	h.Record(g, add)
	id := add.Series().ID
	for i := 0; i < 3; i++ {
		if err := h.Record(g, AddResult(testResult(id, nil))); err != nil {
			t.Fatalf("add result: %v", err)
		}
	}
	before := g.Export()
	if err := h.Record(g, DeleteSeries(id)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := g.Series(id); ok {
		t.Fatalf("series not deleted")
	}
	if _, err := h.Undo(g); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !reflect.DeepEqual(before, g.Export()) {
		t.Fatalf("delete-then-undo did not restore state")
	}
}

type failingRevert struct{ applied bool }

func (f *failingRevert) Description() string { return "broken" }

func (f *failingRevert) Apply(*graph.Graph) error {
	f.applied = true
	return nil
}

func (f *failingRevert) Revert(*graph.Graph) error { return errors.New("inverse failed") }

func TestFailedRevertPoisonsHistory(t *testing.T) {
	g := newGraph()
	h := New(0)
	h.Record(g, SetNotes("a"))
	h.Record(g, &failingRevert{})
	_, err := h.Undo(g)
	var replay *ReplayError
	if !errors.As(err, &replay) || !errors.Is(err, domain.ErrCorrupted) {
		t.Fatalf("expected replay error, got %v", err)
	}
	if err := h.Record(g, SetNotes("b")); !errors.Is(err, domain.ErrCorrupted) {
		t.Fatalf("record after corruption: %v", err)
	}
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("poisoned history should not offer undo/redo")
	}
	h.Clear()
	if err := h.Record(g, SetNotes("b")); err != nil {
		t.Fatalf("record after clear: %v", err)
	}
}

func TestBatchRollsBackOnFailure(t *testing.T) {
	g := newGraph()
	h := New(0)
	before := g.Export()
	err := h.Record(g, Batch("import", AddSeries(tenPoints("a")), AddSeries(tenPoints("b")), DeleteSeries("missing")))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !reflect.DeepEqual(before, g.Export()) || h.Len() != 0 {
		t.Fatalf("batch left partial state")
	}
	if err := h.Record(g, Batch("import", AddSeries(tenPoints("a")), AddSeries(tenPoints("b")))); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(g.ListSeries()) != 2 || h.Len() != 1 {
		t.Fatalf("batch should be one entry")
	}
	h.Undo(g)
	if len(g.ListSeries()) != 0 {
		t.Fatalf("batch undo left series behind")
	}
}

func TestLimitDropsOldest(t *testing.T) {
	g := newGraph()
	h := New(2)
	for _, n := range []string{"a", "b", "c"} {
		h.Record(g, SetNotes(n))
	}
	if h.Len() != 2 || h.Cursor() != 2 {
		t.Fatalf("len=%d cursor=%d", h.Len(), h.Cursor())
	}
	h.Undo(g)
	h.Undo(g)
	if h.CanUndo() || g.Project().Notes != "a" {
		t.Fatalf("unexpected state after undoing to limit: %q", g.Project().Notes)
	}
}

// randomEntry builds a mutation that is valid against the current graph.
func randomEntry(rng *rand.Rand, g *graph.Graph) Entry {
	series := g.ListSeries()
	plots := g.ListPlots()
	switch op := rng.Intn(9); {
	case op == 0 || len(series) == 0:
		return AddSeries(tenPoints(fmt.Sprintf("s%d", rng.Intn(3))))
	case op == 1:
		return DeleteSeries(series[rng.Intn(len(series))].ID)
	case op == 2:
		return RenameSeries(series[rng.Intn(len(series))].ID, fmt.Sprintf("s%d", rng.Intn(3)))
	case op == 3:
		return SetMask(series[rng.Intn(len(series))].ID, map[int]bool{rng.Intn(10): true, rng.Intn(10): true})
	case op == 4:
		s := series[rng.Intn(len(series))]
		return AddResult(testResult(s.ID, s.Mask))
	case op == 5 || len(plots) == 0:
		return AddPlot(domain.PlotDescriptor{Label: "plot", Kind: domain.PlotNyquist})
	case op == 6:
		p := plots[rng.Intn(len(plots))]
		return SetPlotItems(p.ID, []domain.PlotItem{{Ref: series[rng.Intn(len(series))].ID, Style: domain.Style{ZOrder: rng.Intn(5)}}})
	case op == 7:
		return DeletePlot(plots[rng.Intn(len(plots))].ID)
	default:
		return SetNotes(fmt.Sprintf("note %d", rng.Intn(100)))
	}
}

func TestUndoRedoNReproducesState(t *testing.T) {
	for n := 0; n <= 40; n += 5 {
		rng := rand.New(rand.NewSource(int64(n) + 1))
		g := newGraph()
		h := New(0)
		initial := g.Export()
		for i := 0; i < n; i++ {
			if err := h.Record(g, randomEntry(rng, g)); err != nil {
				t.Fatalf("n=%d step %d: %v", n, i, err)
			}
		}
		after := g.Export()
		for i := 0; i < n; i++ {
			if _, err := h.Undo(g); err != nil {
				t.Fatalf("n=%d undo %d: %v", n, i, err)
			}
		}
		if !reflect.DeepEqual(initial, g.Export()) {
			t.Fatalf("n=%d: undo did not return to initial state", n)
		}
		for i := 0; i < n; i++ {
			if _, err := h.Redo(g); err != nil {
				t.Fatalf("n=%d redo %d: %v", n, i, err)
			}
		}
		if !reflect.DeepEqual(after, g.Export()) {
			t.Fatalf("n=%d: redo did not reproduce state", n)
		}
	}
}
