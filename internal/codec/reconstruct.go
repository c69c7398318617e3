package codec

import (
	"eiscore/internal/circuit"
	"eiscore/pkg/domain"
	"fmt"
	"math"
)

// Tolerance is the relative tolerance within which reconstructed values must
// match the stored ones for a field to be omitted in storage mode.
const Tolerance = 1e-9

// reconstruction holds the arrays derivable from a result's other fields.
type reconstruction struct {
	frequencies []float64
	real, imag  []float64
	resRe       []float64
	resIm       []float64
}

// includedFrequencies returns the source frequencies at the indices that the
// result's mask snapshot did not exclude.
func includedFrequencies(s domain.Series, mask map[int]bool) []float64 {
	out := make([]float64, 0, s.Len())
	for i, f := range s.Frequencies {
		if !mask[i] {
			out = append(out, f)
		}
	}
	return out
}

func includedData(s domain.Series, mask map[int]bool) []complex128 {
	out := make([]complex128, 0, s.Len())
	for i := range s.Frequencies {
		if !mask[i] {
			out = append(out, s.Impedance(i))
		}
	}
	return out
}

// omit decides, for storage mode, which fields of r can be dropped. It only
// drops a field when reconstructing it reproduces the stored values within
// Tolerance, so decoding never changes a value beyond that bound.
func omit(r domain.Result, series map[string]domain.Series) []string {
	var derived []string
	switch r.Kind {
	case domain.KindTest, domain.KindFit:
		s, ok := series[r.SeriesID]
		if !ok {
			return nil
		}
		freqs := includedFrequencies(s, r.Mask)
		if !allWithin(freqs, r.Frequencies) {
			return nil
		}
		derived = append(derived, derivedFrequencies)
		code, params, ok := r.Circuit()
		if !ok {
			return derived
		}
		model, err := circuit.Evaluate(code, params, freqs)
		if err != nil {
			return derived
		}
		re, im := circuit.Split(model)
		if !allWithin(re, r.Real) || !allWithin(im, r.Imag) {
			return derived
		}
		derived = append(derived, derivedModel)
		if len(r.ResidualsReal) == 0 {
			return derived
		}
		resRe, resIm, err := circuit.Residuals(includedData(s, r.Mask), model)
		if err == nil && allWithin(resRe, r.ResidualsReal) && allWithin(resIm, r.ResidualsImag) {
			derived = append(derived, derivedResiduals)
		}
	case domain.KindDRT:
		s, ok := series[r.SeriesID]
		if ok && allWithin(includedFrequencies(s, r.Mask), r.Frequencies) {
			derived = append(derived, derivedFrequencies)
		}
	case domain.KindSimulation:
		set := r.Simulation.Settings
		freqs, err := circuit.LogSpace(set.MinFrequency, set.MaxFrequency, set.PointsPerDecade)
		if err != nil || !allWithin(freqs, r.Frequencies) {
			return nil
		}
		derived = append(derived, derivedFrequencies)
		model, err := circuit.Evaluate(set.Circuit, set.Parameters, freqs)
		if err != nil {
			return derived
		}
		re, im := circuit.Split(model)
		if allWithin(re, r.Real) && allWithin(im, r.Imag) {
			derived = append(derived, derivedModel)
		}
	}
	return derived
}

// restore fills in the fields listed in derived. It is the inverse of omit.
func restore(r *domain.Result, derived []string, series map[string]domain.Series) error {
	if len(derived) == 0 {
		return nil
	}
	want := make(map[string]bool, len(derived))
	for _, d := range derived {
		switch d {
		case derivedFrequencies, derivedModel, derivedResiduals:
			want[d] = true
		default:
			return fmt.Errorf("result %s: unknown derived field %q", r.ID, d)
		}
	}
	var rec reconstruction
	if r.Kind == domain.KindSimulation {
		set := r.Simulation.Settings
		freqs, err := circuit.LogSpace(set.MinFrequency, set.MaxFrequency, set.PointsPerDecade)
		if err != nil {
			return fmt.Errorf("result %s: %w", r.ID, err)
		}
		rec.frequencies = freqs
	} else {
		s, ok := series[r.SeriesID]
		if !ok {
			return fmt.Errorf("result %s: source series %s missing", r.ID, r.SeriesID)
		}
		rec.frequencies = includedFrequencies(s, r.Mask)
		if want[derivedModel] || want[derivedResiduals] {
			code, params, ok := r.Circuit()
			if !ok {
				return fmt.Errorf("result %s: no circuit to reconstruct from", r.ID)
			}
			model, err := circuit.Evaluate(code, params, rec.frequencies)
			if err != nil {
				return fmt.Errorf("result %s: %w", r.ID, err)
			}
			rec.real, rec.imag = circuit.Split(model)
			if want[derivedResiduals] {
				rec.resRe, rec.resIm, err = circuit.Residuals(includedData(s, r.Mask), model)
				if err != nil {
					return fmt.Errorf("result %s: %w", r.ID, err)
				}
			}
		}
	}
	if want[derivedFrequencies] {
		r.Frequencies = rec.frequencies
	}
	if want[derivedModel] {
		if r.Kind == domain.KindSimulation {
			model, err := circuit.Evaluate(r.Simulation.Settings.Circuit, r.Simulation.Settings.Parameters, rec.frequencies)
			if err != nil {
				return fmt.Errorf("result %s: %w", r.ID, err)
			}
			rec.real, rec.imag = circuit.Split(model)
		}
		r.Real, r.Imag = rec.real, rec.imag
	}
	if want[derivedResiduals] {
		r.ResidualsReal, r.ResidualsImag = rec.resRe, rec.resIm
	}
	return nil
}

func allWithin(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Within(a[i], b[i], Tolerance) {
			return false
		}
	}
	return true
}

// Within reports whether a and b agree within the relative tolerance tol.
func Within(a, b, tol float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b))
}
