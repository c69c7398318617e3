package graph

import (
	"eiscore/internal/circuit"
	"eiscore/pkg/domain"
	"fmt"
	"math"
)

// Derived series are built from existing series but are not inserted; the
// caller adds them through a recorded action.

// Average returns a new series holding the pointwise mean of the given series.
// Every input must share the same frequency axis.
func (g *Graph) Average(ids []string, label string) (domain.Series, error) {
	if len(ids) < 2 {
		return domain.Series{}, domain.Invalid(domain.EntitySeries, "", "average needs at least two series")
	}
	inputs := make([]domain.Series, 0, len(ids))
	for _, id := range ids {
		s, ok := g.series[id]
		if !ok {
			return domain.Series{}, domain.NotFound(domain.EntitySeries, id)
		}
		inputs = append(inputs, s)
	}
	ref := inputs[0]
	out := domain.Series{
		Label:       label,
		Frequencies: append([]float64(nil), ref.Frequencies...),
		Real:        make([]float64, ref.Len()),
		Imag:        make([]float64, ref.Len()),
		Mask:        map[int]bool{},
	}
	for _, s := range inputs {
		if !sameAxis(ref.Frequencies, s.Frequencies) {
			return domain.Series{}, domain.Invalid(domain.EntitySeries, s.ID, "frequency axis differs from "+ref.ID)
		}
		for i := range s.Real {
			out.Real[i] += s.Real[i]
			out.Imag[i] += s.Imag[i]
		}
	}
	n := float64(len(inputs))
	for i := range out.Real {
		out.Real[i] /= n
		out.Imag[i] /= n
	}
	return out, nil
}

// Subtrahend selects what Subtract removes from a series. Exactly one of the
// fields is used, checked in the order SeriesID, ResultID, Circuit, Constant.
type Subtrahend struct {
	SeriesID   string
	ResultID   string
	Circuit    string
	Parameters []domain.Parameter
	Constant   complex128
}

// Subtract returns a copy of a series with the subtrahend removed pointwise.
// Results and circuits are evaluated on the series' own frequency axis.
func (g *Graph) Subtract(id string, sub Subtrahend, label string) (domain.Series, error) {
	s, ok := g.series[id]
	if !ok {
		return domain.Series{}, domain.NotFound(domain.EntitySeries, id)
	}
	var values []complex128
	switch {
	case sub.SeriesID != "":
		other, ok := g.series[sub.SeriesID]
		if !ok {
			return domain.Series{}, domain.NotFound(domain.EntitySeries, sub.SeriesID)
		}
		if !sameAxis(s.Frequencies, other.Frequencies) {
			return domain.Series{}, domain.Invalid(domain.EntitySeries, other.ID, "frequency axis differs from "+s.ID)
		}
		values = circuit.Join(other.Real, other.Imag)
	case sub.ResultID != "":
		r, ok := g.results[sub.ResultID]
		if !ok {
			return domain.Series{}, domain.NotFound(domain.EntityResult, sub.ResultID)
		}
		code, params, ok := r.Circuit()
		if !ok {
			return domain.Series{}, domain.Invalid(domain.EntityResult, r.ID, "result has no circuit to subtract")
		}
		z, err := circuit.Evaluate(code, params, s.Frequencies)
		if err != nil {
			return domain.Series{}, domain.Invalid(domain.EntityResult, r.ID, err.Error())
		}
		values = z
	case sub.Circuit != "":
		z, err := circuit.Evaluate(sub.Circuit, sub.Parameters, s.Frequencies)
		if err != nil {
			return domain.Series{}, domain.Invalid(domain.EntitySeries, id, err.Error())
		}
		values = z
	default:
		values = make([]complex128, s.Len())
		for i := range values {
			values[i] = sub.Constant
		}
	}
	out := domain.CloneSeries(s)
	out.ID = ""
	out.Label = label
	for i, v := range values {
		out.Real[i] -= real(v)
		out.Imag[i] -= imag(v)
	}
	return out, nil
}

// Interpolate returns a copy of a series where the listed points are replaced
// by linear interpolation in log-frequency between the nearest points that are
// not listed. Edges take the value of the nearest kept point.
func (g *Graph) Interpolate(id string, indices []int, label string) (domain.Series, error) {
	s, ok := g.series[id]
	if !ok {
		return domain.Series{}, domain.NotFound(domain.EntitySeries, id)
	}
	replace := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= s.Len() {
			return domain.Series{}, domain.Invalid(domain.EntitySeries, id, fmt.Sprintf("index %d out of range", i))
		}
		replace[i] = true
	}
	if len(replace) >= s.Len() {
		return domain.Series{}, domain.Invalid(domain.EntitySeries, id, "at least one point must be kept")
	}
	out := domain.CloneSeries(s)
	out.ID = ""
	out.Label = label
	for i := range replace {
		lo, hi := i-1, i+1
		for lo >= 0 && replace[lo] {
			lo--
		}
		for hi < s.Len() && replace[hi] {
			hi++
		}
		switch {
		case lo < 0:
			out.Real[i], out.Imag[i] = s.Real[hi], s.Imag[hi]
		case hi >= s.Len():
			out.Real[i], out.Imag[i] = s.Real[lo], s.Imag[lo]
		default:
			x0, x1 := math.Log10(s.Frequencies[lo]), math.Log10(s.Frequencies[hi])
			t := (math.Log10(s.Frequencies[i]) - x0) / (x1 - x0)
			out.Real[i] = s.Real[lo] + t*(s.Real[hi]-s.Real[lo])
			out.Imag[i] = s.Imag[lo] + t*(s.Imag[hi]-s.Imag[lo])
		}
	}
	return out, nil
}

func sameAxis(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9*math.Abs(a[i]) {
			return false
		}
	}
	return true
}
