package codec

import (
	"eiscore/pkg/domain"
	"fmt"
	"math"
	"reflect"
)

// EquivalentStates reports the first difference between two states, comparing
// float arrays within Tolerance and treating NaN scalars as equal. It is the
// equality used for storage-mode documents.
func EquivalentStates(a, b domain.State) error {
	if !reflect.DeepEqual(a.Project, b.Project) {
		return fmt.Errorf("project differs: %+v vs %+v", a.Project, b.Project)
	}
	if !reflect.DeepEqual(a.Series, b.Series) {
		return fmt.Errorf("series differ")
	}
	if !reflect.DeepEqual(a.Plots, b.Plots) {
		return fmt.Errorf("plots differ")
	}
	if len(a.Results) != len(b.Results) {
		return fmt.Errorf("result groups: %d vs %d", len(a.Results), len(b.Results))
	}
	for id, ga := range a.Results {
		gb, ok := b.Results[id]
		if !ok {
			return fmt.Errorf("result group %s missing", id)
		}
		for _, kind := range domain.SeriesResultKinds {
			if err := equivalentResults(ga.Of(kind), gb.Of(kind)); err != nil {
				return fmt.Errorf("series %s %s: %w", id, kind, err)
			}
		}
	}
	if err := equivalentResults(a.Simulations, b.Simulations); err != nil {
		return fmt.Errorf("simulations: %w", err)
	}
	return nil
}

func equivalentResults(a, b []domain.Result) error {
	if len(a) != len(b) {
		return fmt.Errorf("%d vs %d results", len(a), len(b))
	}
	for i := range a {
		ra, rb := a[i], b[i]
		for name, pair := range map[string][2][]float64{
			"frequencies":    {ra.Frequencies, rb.Frequencies},
			"real":           {ra.Real, rb.Real},
			"imag":           {ra.Imag, rb.Imag},
			"residuals_real": {ra.ResidualsReal, rb.ResidualsReal},
			"residuals_imag": {ra.ResidualsImag, rb.ResidualsImag},
		} {
			if !allWithin(pair[0], pair[1]) {
				return fmt.Errorf("result %s: %s differ beyond tolerance", ra.ID, name)
			}
		}
		ra.Frequencies, ra.Real, ra.Imag, ra.ResidualsReal, ra.ResidualsImag = nil, nil, nil, nil, nil
		rb.Frequencies, rb.Real, rb.Imag, rb.ResidualsReal, rb.ResidualsImag = nil, nil, nil, nil, nil
		if !reflect.DeepEqual(scrubNaN(ra), scrubNaN(rb)) {
			return fmt.Errorf("result %s: fields differ", ra.ID)
		}
	}
	return nil
}

// scrubNaN returns a copy of r with NaN scalars replaced by a sentinel so
// reflect.DeepEqual can compare them.
func scrubNaN(r domain.Result) domain.Result {
	r = domain.CloneResult(r)
	fix := func(v *float64) {
		if math.IsNaN(*v) {
			*v = math.MaxFloat64
		}
	}
	fixParams := func(ps []domain.Parameter) {
		for i := range ps {
			fix(&ps[i].Value)
			fix(&ps[i].StdErr)
		}
	}
	fixStats := func(m map[string]float64) {
		for k, v := range m {
			fix(&v)
			m[k] = v
		}
	}
	switch {
	case r.Test != nil:
		fixParams(r.Test.Parameters)
		fix(&r.Test.Mu)
		fix(&r.Test.PseudoChisqr)
	case r.DRT != nil:
		fix(&r.DRT.Lambda)
		fix(&r.DRT.Chisqr)
		fixStats(r.DRT.Statistics)
	case r.Fit != nil:
		fixParams(r.Fit.Parameters)
		fix(&r.Fit.Chisqr)
		fixStats(r.Fit.Statistics)
	case r.Simulation != nil:
		fixParams(r.Simulation.Settings.Parameters)
	}
	return r
}
