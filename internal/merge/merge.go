// Package merge combines several projects into one, rewriting every
// identifier through a per-source substitution map.
package merge

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"fmt"
	"strings"
)

// Report summarizes a merge.
type Report struct {
	// Substitutions maps old identifiers to new ones, one map per source in
	// input order.
	Substitutions []map[string]string
	Series        int
	Results       int
	Plots         int
	// DroppedReferences counts plot references that were already dangling in
	// their source project.
	DroppedReferences int
}

// Merger merges project states. The zero value is not usable; use New.
type Merger struct {
	opts []graph.Option
}

// New returns a Merger whose output graph is built with opts.
func New(opts ...graph.Option) *Merger { return &Merger{opts: opts} }

// Merge merges sources with default graph options.
func Merge(label string, sources ...domain.State) (domain.State, Report, error) {
	return New().Merge(label, sources...)
}

// Merge builds a new project labelled label holding every entity of the
// sources. Colliding series and plot labels get the usual " (n)" suffix.
// Sources are validated first; nothing is produced when one is inconsistent.
func (m *Merger) Merge(label string, sources ...domain.State) (domain.State, Report, error) {
	if len(sources) == 0 {
		return domain.State{}, Report{}, domain.Invalid(domain.EntityProject, "", "merge needs at least one source")
	}
	for i, src := range sources {
		if _, err := graph.FromState(src); err != nil {
			return domain.State{}, Report{}, fmt.Errorf("merge source %d (%s): %w", i, src.Project.Label, err)
		}
	}
	g := graph.New(domain.Project{Label: label}, m.opts...)
	rep := Report{Substitutions: make([]map[string]string, 0, len(sources))}
	var notes []string
	for i, src := range sources {
		subst, err := m.mergeOne(g, src, &rep)
		if err != nil {
			return domain.State{}, Report{}, fmt.Errorf("merge source %d (%s): %w", i, src.Project.Label, err)
		}
		rep.Substitutions = append(rep.Substitutions, subst)
		if strings.TrimSpace(src.Project.Notes) != "" {
			notes = append(notes, fmt.Sprintf("[%s]\n%s", src.Project.Label, src.Project.Notes))
		}
	}
	g.SetNotes(strings.Join(notes, "\n\n"))
	return g.Export(), rep, nil
}

func (m *Merger) mergeOne(g *graph.Graph, src domain.State, rep *Report) (map[string]string, error) {
	subst := make(map[string]string, src.EntityCount())
	for _, s := range src.Series {
		old := s.ID
		s.ID = ""
		added, err := g.AddSeries(s)
		if err != nil {
			return nil, err
		}
		subst[old] = added.ID
		rep.Series++
	}
	addResult := func(r domain.Result) error {
		old := r.ID
		r.ID = ""
		if r.Kind.SeriesBound() {
			r.SeriesID = subst[r.SeriesID]
		}
		added, err := g.AddResult(r)
		if err != nil {
			return err
		}
		subst[old] = added.ID
		rep.Results++
		return nil
	}
	for _, s := range src.Series {
		group := src.Results[s.ID]
		for _, kind := range domain.SeriesResultKinds {
			for _, r := range group.Of(kind) {
				if err := addResult(r); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, r := range src.Simulations {
		if err := addResult(r); err != nil {
			return nil, err
		}
	}
	for _, p := range src.Plots {
		old := p.ID
		p.ID = ""
		items := make([]domain.PlotItem, 0, len(p.Items))
		for _, item := range p.Items {
			ref, ok := subst[item.Ref]
			if !ok {
				rep.DroppedReferences++
				continue
			}
			item.Ref = ref
			items = append(items, item)
		}
		p.Items = items
		added, err := g.AddPlot(p)
		if err != nil {
			return nil, err
		}
		subst[old] = added.ID
		rep.Plots++
	}
	return subst, nil
}
