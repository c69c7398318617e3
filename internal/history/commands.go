package history

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
)

type command struct {
	desc   string
	apply  func(*graph.Graph) error
	revert func(*graph.Graph) error
}

func (c *command) Description() string { return c.desc }

func (c *command) Apply(g *graph.Graph) error { return c.apply(g) }

func (c *command) Revert(g *graph.Graph) error { return c.revert(g) }

// SeriesAdd inserts a series. After the first Apply the stored copy (with
// its assigned ID and label) is re-inserted at the same ordinal on redo.
type SeriesAdd struct {
	series  domain.Series
	index   int
	applied bool
}

// AddSeries builds an entry that appends s.
func AddSeries(s domain.Series) *SeriesAdd {
	return &SeriesAdd{series: domain.CloneSeries(s), index: -1}
}

func (c *SeriesAdd) Description() string { return "add series " + c.series.Label }

func (c *SeriesAdd) Apply(g *graph.Graph) error {
	var (
		added domain.Series
		err   error
	)
	if c.applied {
		added, err = g.InsertSeries(c.series, c.index)
	} else {
		added, err = g.AddSeries(c.series)
	}
	if err != nil {
		return err
	}
	c.series = added
	c.index = g.SeriesIndex(added.ID)
	c.applied = true
	return nil
}

func (c *SeriesAdd) Revert(g *graph.Graph) error {
	removed, err := g.DeleteSeries(c.series.ID)
	if err != nil {
		return err
	}
	if len(removed.Results) > 0 {
		return fmt.Errorf("series %s gained %d results outside its history", c.series.ID, len(removed.Results))
	}
	return nil
}

// Series returns the series as stored by the last Apply.
func (c *SeriesAdd) Series() domain.Series { return domain.CloneSeries(c.series) }

// DeleteSeries builds an entry that removes a series and its results as one
// step; undo restores them with their identifiers and ordinals.
func DeleteSeries(id string) Entry {
	var removed graph.RemovedSeries
	return &command{
		desc: "delete series " + id,
		apply: func(g *graph.Graph) error {
			r, err := g.DeleteSeries(id)
			if err != nil {
				return err
			}
			removed = r
			return nil
		},
		revert: func(g *graph.Graph) error { return g.RestoreSeries(removed) },
	}
}

// RenameSeries builds an entry that relabels a series.
func RenameSeries(id, label string) Entry {
	var prev string
	return &command{
		desc: fmt.Sprintf("rename series %s to %q", id, label),
		apply: func(g *graph.Graph) error {
			p, _, err := g.RenameSeries(id, label)
			prev = p
			return err
		},
		revert: func(g *graph.Graph) error {
			_, _, err := g.RenameSeries(id, prev)
			return err
		},
	}
}

// SetSeriesPath builds an entry that changes the source path of a series.
func SetSeriesPath(id, path string) Entry {
	var prev string
	return &command{
		desc: "set series path " + id,
		apply: func(g *graph.Graph) error {
			p, err := g.SetSeriesPath(id, path)
			prev = p
			return err
		},
		revert: func(g *graph.Graph) error {
			_, err := g.SetSeriesPath(id, prev)
			return err
		},
	}
}

// SetMask builds an entry that replaces the exclusion mask of a series.
func SetMask(id string, mask map[int]bool) Entry {
	next := domain.CloneMask(mask)
	var prev map[int]bool
	return &command{
		desc: fmt.Sprintf("mask %d points of %s", len(next), id),
		apply: func(g *graph.Graph) error {
			p, err := g.SetMask(id, next)
			if err != nil {
				return err
			}
			prev = p
			return nil
		},
		revert: func(g *graph.Graph) error {
			_, err := g.SetMask(id, prev)
			return err
		},
	}
}

// ResultAdd inserts an analysis result.
type ResultAdd struct {
	result  domain.Result
	index   int
	applied bool
}

// AddResult builds an entry that appends r to its series (or to the
// simulations).
func AddResult(r domain.Result) *ResultAdd {
	return &ResultAdd{result: domain.CloneResult(r), index: -1}
}

func (c *ResultAdd) Description() string {
	if c.result.SeriesID == "" {
		return "add " + string(c.result.Kind)
	}
	return fmt.Sprintf("add %s to %s", c.result.Kind, c.result.SeriesID)
}

func (c *ResultAdd) Apply(g *graph.Graph) error {
	var (
		added domain.Result
		err   error
	)
	if c.applied {
		added, err = g.InsertResult(c.result, c.index)
	} else {
		added, err = g.AddResult(c.result)
	}
	if err != nil {
		return err
	}
	c.result = added
	c.index = indexOfResult(g.ListResults(added.SeriesID, added.Kind), added.ID)
	c.applied = true
	return nil
}

func (c *ResultAdd) Revert(g *graph.Graph) error {
	_, err := g.DeleteResult(c.result.ID)
	return err
}

// Result returns the result as stored by the last Apply.
func (c *ResultAdd) Result() domain.Result { return domain.CloneResult(c.result) }

func indexOfResult(rs []domain.Result, id string) int {
	for i, r := range rs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// DeleteResult builds an entry that removes one result.
func DeleteResult(id string) Entry {
	var removed graph.RemovedResult
	return &command{
		desc: "delete result " + id,
		apply: func(g *graph.Graph) error {
			r, err := g.DeleteResult(id)
			if err != nil {
				return err
			}
			removed = r
			return nil
		},
		revert: func(g *graph.Graph) error {
			_, err := g.InsertResult(removed.Result, removed.Index)
			return err
		},
	}
}

// PlotAdd inserts a plot descriptor.
type PlotAdd struct {
	plot    domain.PlotDescriptor
	index   int
	applied bool
}

// AddPlot builds an entry that appends a plot descriptor.
func AddPlot(p domain.PlotDescriptor) *PlotAdd {
	return &PlotAdd{plot: domain.ClonePlot(p), index: -1}
}

func (c *PlotAdd) Description() string { return "add plot " + c.plot.Label }

func (c *PlotAdd) Apply(g *graph.Graph) error {
	var (
		added domain.PlotDescriptor
		err   error
	)
	if c.applied {
		added, err = g.InsertPlot(c.plot, c.index)
	} else {
		added, err = g.AddPlot(c.plot)
	}
	if err != nil {
		return err
	}
	c.plot = added
	for i, p := range g.ListPlots() {
		if p.ID == added.ID {
			c.index = i
		}
	}
	c.applied = true
	return nil
}

func (c *PlotAdd) Revert(g *graph.Graph) error {
	_, _, err := g.DeletePlot(c.plot.ID)
	return err
}

// Plot returns the descriptor as stored by the last Apply.
func (c *PlotAdd) Plot() domain.PlotDescriptor { return domain.ClonePlot(c.plot) }

// DeletePlot builds an entry that removes a plot descriptor.
func DeletePlot(id string) Entry {
	var (
		removed domain.PlotDescriptor
		index   int
	)
	return &command{
		desc: "delete plot " + id,
		apply: func(g *graph.Graph) error {
			p, i, err := g.DeletePlot(id)
			if err != nil {
				return err
			}
			removed, index = p, i
			return nil
		},
		revert: func(g *graph.Graph) error {
			_, err := g.InsertPlot(removed, index)
			return err
		},
	}
}

// RenamePlot builds an entry that relabels a plot descriptor.
func RenamePlot(id, label string) Entry {
	var prev string
	return &command{
		desc: fmt.Sprintf("rename plot %s to %q", id, label),
		apply: func(g *graph.Graph) error {
			p, _, err := g.RenamePlot(id, label)
			prev = p
			return err
		},
		revert: func(g *graph.Graph) error {
			_, _, err := g.RenamePlot(id, prev)
			return err
		},
	}
}

// SetPlotKind builds an entry that changes the plot kind.
func SetPlotKind(id string, kind domain.PlotKind) Entry {
	var prev domain.PlotKind
	return &command{
		desc: fmt.Sprintf("set plot %s kind to %s", id, kind),
		apply: func(g *graph.Graph) error {
			p, err := g.SetPlotKind(id, kind)
			prev = p
			return err
		},
		revert: func(g *graph.Graph) error {
			_, err := g.SetPlotKind(id, prev)
			return err
		},
	}
}

// SetPlotItems builds an entry that replaces the reference list of a plot.
func SetPlotItems(id string, items []domain.PlotItem) Entry {
	next := append([]domain.PlotItem(nil), items...)
	var prev []domain.PlotItem
	return &command{
		desc: fmt.Sprintf("set %d items on plot %s", len(next), id),
		apply: func(g *graph.Graph) error {
			p, err := g.SetPlotItems(id, next)
			if err != nil {
				return err
			}
			prev = p
			return nil
		},
		revert: func(g *graph.Graph) error {
			_, err := g.SetPlotItems(id, prev)
			return err
		},
	}
}

// RenameProject builds an entry that relabels the project. Uniqueness among
// open projects is settled by the caller before the entry is built.
func RenameProject(label string) Entry {
	var prev string
	return &command{
		desc: fmt.Sprintf("rename project to %q", label),
		apply: func(g *graph.Graph) error {
			p, err := g.SetProjectLabel(label)
			if err != nil {
				return err
			}
			prev = p
			return nil
		},
		revert: func(g *graph.Graph) error {
			_, err := g.SetProjectLabel(prev)
			return err
		},
	}
}

// SetNotes builds an entry that replaces the project notes.
func SetNotes(notes string) Entry {
	var prev string
	return &command{
		desc: "edit notes",
		apply: func(g *graph.Graph) error {
			prev = g.SetNotes(notes)
			return nil
		},
		revert: func(g *graph.Graph) error {
			g.SetNotes(prev)
			return nil
		},
	}
}

// Batch groups entries into one undo step. When a child fails, the children
// already applied are reverted so the batch either applies fully or not at all.
func Batch(desc string, entries ...Entry) Entry {
	return &command{
		desc: desc,
		apply: func(g *graph.Graph) error {
			for i, e := range entries {
				if err := e.Apply(g); err != nil {
					if rbErr := revertAll(g, entries[:i]); rbErr != nil {
						return &ReplayError{Op: "rollback", Entry: desc, Err: errors.Join(err, rbErr)}
					}
					return err
				}
			}
			return nil
		},
		revert: func(g *graph.Graph) error { return revertAll(g, entries) },
	}
}

func revertAll(g *graph.Graph, entries []Entry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].Revert(g); err != nil {
			return fmt.Errorf("revert %q: %w", entries[i].Description(), err)
		}
	}
	return nil
}
