// Package plot resolves plot descriptors against the live entity graph into
// renderable coordinate arrays. Nothing is cached; every call reads the graph.
package plot

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// Reader is the graph surface the resolver needs.
type Reader interface {
	Lookup(id string) (graph.Entity, bool)
}

// Source names what a renderable was drawn from: "series" or a result kind.
const SourceSeries = "series"

// Renderable is everything a renderer needs to draw one item.
type Renderable struct {
	Ref        string
	Label      string
	Source     string
	X, Y       []float64
	Style      domain.Style
	ShowLegend bool
	// Stale is set for results whose mask snapshot differs from the current
	// mask of their source series.
	Stale bool
}

// Resolution is the outcome of resolving one descriptor.
type Resolution struct {
	Items []Renderable
	// Omitted lists dangling references in descriptor order.
	Omitted []string
	// Incompatible lists references whose entity cannot be drawn on this
	// plot kind, e.g. a series on a DRT plot.
	Incompatible []string
}

// Resolve maps every item of d to coordinates for d.Kind. Dangling and
// incompatible references are reported, never fatal. Items are ordered by
// ZOrder, stable on descriptor order.
func Resolve(g Reader, d domain.PlotDescriptor) Resolution {
	type ordered struct {
		r     Renderable
		order int
	}
	var items []ordered
	var res Resolution
	for i, item := range d.Items {
		e, ok := g.Lookup(item.Ref)
		if !ok {
			res.Omitted = append(res.Omitted, item.Ref)
			continue
		}
		rs, ok := renderables(g, d.Kind, e)
		if !ok {
			res.Incompatible = append(res.Incompatible, item.Ref)
			continue
		}
		for _, r := range rs {
			r.Ref = item.Ref
			r.Style = item.Style
			r.ShowLegend = item.Style.ShowLegend
			items = append(items, ordered{r: r, order: i})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].r.Style.ZOrder < items[j].r.Style.ZOrder
	})
	for _, o := range items {
		res.Items = append(res.Items, o.r)
	}
	return res
}

func renderables(g Reader, kind domain.PlotKind, e graph.Entity) ([]Renderable, bool) {
	switch {
	case e.Series != nil:
		s := e.Series.Masked()
		return impedance(kind, Renderable{Label: e.Series.Label, Source: SourceSeries}, s.Frequencies, s.Real, s.Imag)
	case e.Result != nil:
		r := *e.Result
		base := Renderable{Label: resultLabel(g, r), Source: string(r.Kind), Stale: stale(g, r)}
		if kind == domain.PlotDRT {
			if r.DRT == nil || len(r.DRT.Tau) == 0 {
				return nil, false
			}
			base.X = append([]float64(nil), r.DRT.Tau...)
			base.Y = append([]float64(nil), r.DRT.Gamma...)
			return []Renderable{base}, true
		}
		if len(r.Real) == 0 {
			return nil, false
		}
		return impedance(kind, base, r.Frequencies, r.Real, r.Imag)
	}
	return nil, false
}

func impedance(kind domain.PlotKind, base Renderable, f, re, im []float64) ([]Renderable, bool) {
	n := len(f)
	switch kind {
	case domain.PlotNyquist:
		base.X = append([]float64(nil), re...)
		base.Y = negate(im)
	case domain.PlotBodeMagnitude:
		base.X = append([]float64(nil), f...)
		base.Y = make([]float64, n)
		for i := range f {
			base.Y[i] = cmplx.Abs(complex(re[i], im[i]))
		}
	case domain.PlotBodePhase:
		base.X = append([]float64(nil), f...)
		base.Y = make([]float64, n)
		for i := range f {
			base.Y[i] = -cmplx.Phase(complex(re[i], im[i])) * 180 / math.Pi
		}
	case domain.PlotRealImaginary:
		reItem, imItem := base, base
		reItem.Label = base.Label + " (real)"
		reItem.X = append([]float64(nil), f...)
		reItem.Y = append([]float64(nil), re...)
		imItem.Label = base.Label + " (-imag)"
		imItem.X = append([]float64(nil), f...)
		imItem.Y = negate(im)
		return []Renderable{reItem, imItem}, true
	default:
		return nil, false
	}
	return []Renderable{base}, true
}

func negate(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = -v
	}
	return out
}

func resultLabel(g Reader, r domain.Result) string {
	var detail string
	if code, _, ok := r.Circuit(); ok {
		detail = ": " + code
	}
	if !r.Kind.SeriesBound() {
		return fmt.Sprintf("%s%s", r.Kind, detail)
	}
	owner := r.SeriesID
	if e, ok := g.Lookup(r.SeriesID); ok && e.Series != nil {
		owner = e.Series.Label
	}
	return fmt.Sprintf("%s [%s%s]", owner, r.Kind, detail)
}

func stale(g Reader, r domain.Result) bool {
	if !r.Kind.SeriesBound() {
		return false
	}
	e, ok := g.Lookup(r.SeriesID)
	if !ok || e.Series == nil {
		return false
	}
	return r.Stale(e.Series.Mask)
}
