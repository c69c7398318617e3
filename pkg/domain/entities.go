// Package domain defines the entity graph records of an eiscore project:
// measurement series, analysis results, plot descriptors and the project
// aggregate, plus the boundaries (numerical engine, document storage) the
// session core talks to.
package domain

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"time"
)

// EntityType identifies the kind of record stored in a project graph.
type EntityType string

// Supported entity type identifiers used in lookups and errors.
const (
	// EntityProject identifies the project aggregate itself.
	EntityProject EntityType = "project"
	// EntitySeries identifies a measurement series.
	EntitySeries EntityType = "series"
	// EntityResult identifies an analysis result of any kind.
	EntityResult EntityType = "result"
	// EntityPlot identifies a plot descriptor.
	EntityPlot EntityType = "plot"
)

// Project holds the aggregate-level metadata of one project.
type Project struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Notes     string    `json:"notes"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Series is one imported impedance spectrum together with its exclusion mask.
// Frequencies, Real and Imag are parallel arrays; Mask marks excluded points by index.
type Series struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Path        string       `json:"path"`
	Frequencies []float64    `json:"frequencies"`
	Real        []float64    `json:"real"`
	Imag        []float64    `json:"imag"`
	Mask        map[int]bool `json:"mask"`
}

// Len returns the number of points in the series.
func (s Series) Len() int { return len(s.Frequencies) }

// Impedance returns point i as a complex value.
func (s Series) Impedance(i int) complex128 {
	return complex(s.Real[i], s.Imag[i])
}

// Excluded reports whether point i is masked out.
func (s Series) Excluded(i int) bool { return s.Mask[i] }

// Included returns the indices of the points that are not masked, ascending.
func (s Series) Included() []int {
	out := make([]int, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if !s.Mask[i] {
			out = append(out, i)
		}
	}
	return out
}

// Masked returns a copy that only keeps the included points. The copy has an
// empty mask; it is what gets handed to the numerical engine.
func (s Series) Masked() Series {
	idx := s.Included()
	out := Series{
		ID:          s.ID,
		Label:       s.Label,
		Path:        s.Path,
		Frequencies: make([]float64, 0, len(idx)),
		Real:        make([]float64, 0, len(idx)),
		Imag:        make([]float64, 0, len(idx)),
		Mask:        map[int]bool{},
	}
	for _, i := range idx {
		out.Frequencies = append(out.Frequencies, s.Frequencies[i])
		out.Real = append(out.Real, s.Real[i])
		out.Imag = append(out.Imag, s.Imag[i])
	}
	return out
}

// Magnitude returns |Z| for every point.
func (s Series) Magnitude() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = cmplx.Abs(s.Impedance(i))
	}
	return out
}

// Validate checks the structural invariants of a series.
func (s Series) Validate() error {
	n := len(s.Frequencies)
	if len(s.Real) != n || len(s.Imag) != n {
		return Invalid(EntitySeries, s.ID, fmt.Sprintf("array lengths differ (f=%d re=%d im=%d)", n, len(s.Real), len(s.Imag)))
	}
	for i := 0; i < n; i++ {
		if !(s.Frequencies[i] > 0) || math.IsInf(s.Frequencies[i], 0) {
			return Invalid(EntitySeries, s.ID, fmt.Sprintf("frequency %d must be positive and finite", i))
		}
		if !finite(s.Real[i]) || !finite(s.Imag[i]) {
			return Invalid(EntitySeries, s.ID, fmt.Sprintf("impedance %d must be finite", i))
		}
	}
	for i := range s.Mask {
		if i < 0 || i >= n {
			return Invalid(EntitySeries, s.ID, fmt.Sprintf("mask index %d out of range", i))
		}
	}
	return nil
}

// CloneMask copies a mask, dropping false entries so that equal masks compare equal.
func CloneMask(mask map[int]bool) map[int]bool {
	out := make(map[int]bool, len(mask))
	for k, v := range mask {
		if v {
			out[k] = true
		}
	}
	return out
}

// MaskEqual reports whether two masks exclude the same indices.
func MaskEqual(a, b map[int]bool) bool {
	return sameIndices(MaskIndices(a), MaskIndices(b))
}

// MaskIndices returns the excluded indices of a mask in ascending order.
func MaskIndices(mask map[int]bool) []int {
	out := make([]int, 0, len(mask))
	for k, v := range mask {
		if v {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func sameIndices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CloneSeries returns a deep copy of s. Empty arrays come back nil.
func CloneSeries(s Series) Series {
	s.Frequencies = cloneFloats(s.Frequencies)
	s.Real = cloneFloats(s.Real)
	s.Imag = cloneFloats(s.Imag)
	s.Mask = CloneMask(s.Mask)
	return s
}

func cloneFloats(in []float64) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
