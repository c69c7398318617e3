package core

import (
	"context"
	"eiscore/internal/export"
	"eiscore/internal/history"
	"eiscore/internal/plot"
	"eiscore/pkg/domain"
	"io"
)

// Plot returns a copy of one plot descriptor.
func (s *Session) Plot(id string) (domain.PlotDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.g.Plot(id)
	if !ok {
		return domain.PlotDescriptor{}, domain.NotFound(domain.EntityPlot, id)
	}
	return p, nil
}

// Plots returns every plot descriptor in order.
func (s *Session) Plots() []domain.PlotDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.ListPlots()
}

// NewPlot adds an empty plot descriptor.
func (s *Session) NewPlot(ctx context.Context, label string, kind domain.PlotKind) (domain.PlotDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := history.AddPlot(domain.PlotDescriptor{Label: label, Kind: kind})
	if err := s.record(ctx, "add_plot", e); err != nil {
		return domain.PlotDescriptor{}, err
	}
	return e.Plot(), nil
}

// DeletePlot removes a plot descriptor. The entities it referenced are
// untouched.
func (s *Session) DeletePlot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "delete_plot", history.DeletePlot(id))
}

// RenamePlot relabels a plot and returns the label actually applied.
func (s *Session) RenamePlot(ctx context.Context, id, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "rename_plot", history.RenamePlot(id, label)); err != nil {
		return "", err
	}
	p, _ := s.g.Plot(id)
	return p.Label, nil
}

// SetPlotKind changes the coordinate system of a plot.
func (s *Session) SetPlotKind(ctx context.Context, id string, kind domain.PlotKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "set_plot_kind", history.SetPlotKind(id, kind))
}

// SetPlotItems replaces the reference list of a plot.
func (s *Session) SetPlotItems(ctx context.Context, id string, items []domain.PlotItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "set_plot_items", history.SetPlotItems(id, items))
}

// AddPlotItems appends references to series or results with a default
// style. References already on the plot are skipped; a reference that does
// not resolve to a series or result is rejected.
func (s *Session) AddPlotItems(ctx context.Context, id string, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.g.Plot(id)
	if !ok {
		return domain.NotFound(domain.EntityPlot, id)
	}
	items := p.Items
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.Ref] = true
	}
	added := 0
	for _, ref := range refs {
		if present[ref] {
			continue
		}
		ent, ok := s.g.Lookup(ref)
		if !ok || ent.Type == domain.EntityPlot {
			return domain.Invalid(domain.EntityPlot, id, "reference "+ref+" is not a series or result")
		}
		present[ref] = true
		items = append(items, domain.PlotItem{Ref: ref, Style: domain.Style{ShowLegend: true, ZOrder: len(items)}})
		added++
	}
	if added == 0 {
		return nil
	}
	return s.record(ctx, "add_plot_items", history.SetPlotItems(id, items))
}

// RemovePlotItems drops references from a plot.
func (s *Session) RemovePlotItems(ctx context.Context, id string, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.g.Plot(id)
	if !ok {
		return domain.NotFound(domain.EntityPlot, id)
	}
	drop := make(map[string]bool, len(refs))
	for _, ref := range refs {
		drop[ref] = true
	}
	kept := make([]domain.PlotItem, 0, len(p.Items))
	for _, item := range p.Items {
		if drop[item.Ref] {
			delete(drop, item.Ref)
			continue
		}
		kept = append(kept, item)
	}
	for _, ref := range refs {
		if drop[ref] {
			return domain.Invalid(domain.EntityPlot, id, "reference "+ref+" is not on the plot")
		}
	}
	return s.record(ctx, "remove_plot_items", history.SetPlotItems(id, kept))
}

// SetItemStyle replaces the style of one plot item.
func (s *Session) SetItemStyle(ctx context.Context, id, ref string, style domain.Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.g.Plot(id)
	if !ok {
		return domain.NotFound(domain.EntityPlot, id)
	}
	for i := range p.Items {
		if p.Items[i].Ref == ref {
			p.Items[i].Style = style
			return s.record(ctx, "set_item_style", history.SetPlotItems(id, p.Items))
		}
	}
	return domain.Invalid(domain.EntityPlot, id, "reference "+ref+" is not on the plot")
}

// PrunePlot removes the references that no longer resolve and returns how
// many were removed. Nothing is recorded when there are none.
func (s *Session) PrunePlot(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dangling, err := s.g.DanglingRefs(id)
	if err != nil {
		return 0, err
	}
	if len(dangling) == 0 {
		return 0, nil
	}
	gone := make(map[string]bool, len(dangling))
	for _, ref := range dangling {
		gone[ref] = true
	}
	p, _ := s.g.Plot(id)
	kept := make([]domain.PlotItem, 0, len(p.Items))
	for _, item := range p.Items {
		if !gone[item.Ref] {
			kept = append(kept, item)
		}
	}
	if err := s.record(ctx, "prune_plot", history.SetPlotItems(id, kept)); err != nil {
		return 0, err
	}
	return len(dangling), nil
}

// ResolvePlot resolves a plot against the live graph. Dangling references
// are omitted and counted, never fatal.
func (s *Session) ResolvePlot(id string) (domain.PlotDescriptor, plot.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.g.Plot(id)
	if !ok {
		return domain.PlotDescriptor{}, plot.Resolution{}, domain.NotFound(domain.EntityPlot, id)
	}
	res := plot.Resolve(s.g, p)
	s.w.metrics.dangling(len(res.Omitted))
	if len(res.Omitted) > 0 {
		s.w.logger.Debug("plot has dangling references", "project", s.id, "plot", id, "omitted", res.Omitted)
	}
	return p, res, nil
}

// ExportPlot resolves a plot and writes it to w as an xlsx workbook.
func (s *Session) ExportPlot(id string, w io.Writer) error {
	p, res, err := s.ResolvePlot(id)
	if err != nil {
		return err
	}
	return export.WritePlot(w, p, res)
}
