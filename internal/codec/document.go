package codec

import (
	"eiscore/pkg/domain"
	"time"
)

// document is the version 3 on-disk layout.
type document struct {
	Version     int                       `json:"version"`
	Mode        Mode                      `json:"mode"`
	Project     projectDoc                `json:"project"`
	Series      []seriesDoc               `json:"series"`
	Results     map[string]resultGroupDoc `json:"results"`
	Simulations []resultDoc               `json:"simulations"`
	Plots       []plotDoc                 `json:"plots"`
}

type projectDoc struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Notes     string    `json:"notes,omitempty"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type seriesDoc struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Path        string       `json:"path,omitempty"`
	Frequencies jsonFloats   `json:"frequencies"`
	Real        jsonFloats   `json:"real"`
	Imag        jsonFloats   `json:"imag"`
	Mask        map[int]bool `json:"mask,omitempty"`
}

type resultGroupDoc struct {
	Test []resultDoc `json:"test,omitempty"`
	DRT  []resultDoc `json:"drt,omitempty"`
	Fit  []resultDoc `json:"fit,omitempty"`
}

// Field names listed in resultDoc.Derived.
const (
	derivedFrequencies = "frequencies"
	derivedModel       = "model"
	derivedResiduals   = "residuals"
)

type resultDoc struct {
	ID            string            `json:"id"`
	Kind          domain.ResultKind `json:"kind"`
	CreatedAt     time.Time         `json:"created_at"`
	Mask          map[int]bool      `json:"mask,omitempty"`
	Derived       []string          `json:"derived,omitempty"`
	Frequencies   jsonFloats        `json:"frequencies,omitempty"`
	Real          jsonFloats        `json:"real,omitempty"`
	Imag          jsonFloats        `json:"imag,omitempty"`
	ResidualsReal jsonFloats        `json:"residuals_real,omitempty"`
	ResidualsImag jsonFloats        `json:"residuals_imag,omitempty"`
	Test          *testDoc          `json:"test,omitempty"`
	DRT           *drtDoc           `json:"drt,omitempty"`
	Fit           *fitDoc           `json:"fit,omitempty"`
	Simulation    *simulationDoc    `json:"simulation,omitempty"`
}

type parameterDoc struct {
	Element string    `json:"element"`
	Symbol  string    `json:"symbol"`
	Value   jsonFloat `json:"value"`
	StdErr  jsonFloat `json:"stderr"`
	Fixed   bool      `json:"fixed,omitempty"`
}

type testDoc struct {
	Settings     domain.TestSettings `json:"settings"`
	Circuit      string              `json:"circuit"`
	Parameters   []parameterDoc      `json:"parameters,omitempty"`
	NumRC        int                 `json:"num_rc"`
	Mu           jsonFloat           `json:"mu"`
	PseudoChisqr jsonFloat           `json:"pseudo_chisqr"`
}

type drtDoc struct {
	Settings   domain.DRTSettings   `json:"settings"`
	Tau        jsonFloats           `json:"tau,omitempty"`
	Gamma      jsonFloats           `json:"gamma,omitempty"`
	GammaImag  jsonFloats           `json:"gamma_imag,omitempty"`
	Lambda     jsonFloat            `json:"lambda"`
	Chisqr     jsonFloat            `json:"chisqr"`
	Statistics map[string]jsonFloat `json:"statistics,omitempty"`
}

type fitDoc struct {
	Settings   domain.FitSettings   `json:"settings"`
	Circuit    string               `json:"circuit"`
	Parameters []parameterDoc       `json:"parameters,omitempty"`
	Chisqr     jsonFloat            `json:"chisqr"`
	Statistics map[string]jsonFloat `json:"statistics,omitempty"`
}

type simulationDoc struct {
	Circuit         string         `json:"circuit"`
	Parameters      []parameterDoc `json:"parameters,omitempty"`
	MinFrequency    jsonFloat      `json:"min_frequency"`
	MaxFrequency    jsonFloat      `json:"max_frequency"`
	PointsPerDecade int            `json:"points_per_decade"`
}

type plotDoc struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Kind  domain.PlotKind `json:"kind"`
	Items []plotItemDoc   `json:"items,omitempty"`
}

type plotItemDoc struct {
	Ref   string       `json:"ref"`
	Style domain.Style `json:"style"`
}

// --- domain -> document ---

func seriesToDoc(s domain.Series) seriesDoc {
	return seriesDoc{
		ID:          s.ID,
		Label:       s.Label,
		Path:        s.Path,
		Frequencies: jsonFloats(s.Frequencies),
		Real:        jsonFloats(s.Real),
		Imag:        jsonFloats(s.Imag),
		Mask:        nilIfEmptyMask(s.Mask),
	}
}

func resultToDoc(r domain.Result) resultDoc {
	d := resultDoc{
		ID:            r.ID,
		Kind:          r.Kind,
		CreatedAt:     r.CreatedAt,
		Mask:          nilIfEmptyMask(r.Mask),
		Frequencies:   jsonFloats(r.Frequencies),
		Real:          jsonFloats(r.Real),
		Imag:          jsonFloats(r.Imag),
		ResidualsReal: jsonFloats(r.ResidualsReal),
		ResidualsImag: jsonFloats(r.ResidualsImag),
	}
	switch {
	case r.Test != nil:
		d.Test = &testDoc{
			Settings:     r.Test.Settings,
			Circuit:      r.Test.Circuit,
			Parameters:   paramsToDoc(r.Test.Parameters),
			NumRC:        r.Test.NumRC,
			Mu:           jsonFloat(r.Test.Mu),
			PseudoChisqr: jsonFloat(r.Test.PseudoChisqr),
		}
	case r.DRT != nil:
		d.DRT = &drtDoc{
			Settings:   r.DRT.Settings,
			Tau:        jsonFloats(r.DRT.Tau),
			Gamma:      jsonFloats(r.DRT.Gamma),
			GammaImag:  jsonFloats(r.DRT.GammaImag),
			Lambda:     jsonFloat(r.DRT.Lambda),
			Chisqr:     jsonFloat(r.DRT.Chisqr),
			Statistics: statsToDoc(r.DRT.Statistics),
		}
	case r.Fit != nil:
		d.Fit = &fitDoc{
			Settings:   r.Fit.Settings,
			Circuit:    r.Fit.Circuit,
			Parameters: paramsToDoc(r.Fit.Parameters),
			Chisqr:     jsonFloat(r.Fit.Chisqr),
			Statistics: statsToDoc(r.Fit.Statistics),
		}
	case r.Simulation != nil:
		s := r.Simulation.Settings
		d.Simulation = &simulationDoc{
			Circuit:         s.Circuit,
			Parameters:      paramsToDoc(s.Parameters),
			MinFrequency:    jsonFloat(s.MinFrequency),
			MaxFrequency:    jsonFloat(s.MaxFrequency),
			PointsPerDecade: s.PointsPerDecade,
		}
	}
	return d
}

func plotToDoc(p domain.PlotDescriptor) plotDoc {
	d := plotDoc{ID: p.ID, Label: p.Label, Kind: p.Kind}
	for _, item := range p.Items {
		d.Items = append(d.Items, plotItemDoc{Ref: item.Ref, Style: item.Style})
	}
	return d
}

func paramsToDoc(in []domain.Parameter) []parameterDoc {
	if len(in) == 0 {
		return nil
	}
	out := make([]parameterDoc, len(in))
	for i, p := range in {
		out[i] = parameterDoc{Element: p.Element, Symbol: p.Symbol, Value: jsonFloat(p.Value), StdErr: jsonFloat(p.StdErr), Fixed: p.Fixed}
	}
	return out
}

// --- document -> domain ---

func seriesFromDoc(d seriesDoc) domain.Series {
	return domain.Series{
		ID:          d.ID,
		Label:       d.Label,
		Path:        d.Path,
		Frequencies: []float64(d.Frequencies),
		Real:        []float64(d.Real),
		Imag:        []float64(d.Imag),
		Mask:        domain.CloneMask(d.Mask),
	}
}

func resultFromDoc(d resultDoc, seriesID string) domain.Result {
	r := domain.Result{
		ID:            d.ID,
		Kind:          d.Kind,
		SeriesID:      seriesID,
		CreatedAt:     d.CreatedAt,
		Mask:          domain.CloneMask(d.Mask),
		Frequencies:   []float64(d.Frequencies),
		Real:          []float64(d.Real),
		Imag:          []float64(d.Imag),
		ResidualsReal: []float64(d.ResidualsReal),
		ResidualsImag: []float64(d.ResidualsImag),
	}
	switch {
	case d.Test != nil:
		r.Test = &domain.TestOutput{
			Settings:     d.Test.Settings,
			Circuit:      d.Test.Circuit,
			Parameters:   paramsFromDoc(d.Test.Parameters),
			NumRC:        d.Test.NumRC,
			Mu:           float64(d.Test.Mu),
			PseudoChisqr: float64(d.Test.PseudoChisqr),
		}
	case d.DRT != nil:
		r.DRT = &domain.DRTOutput{
			Settings:   d.DRT.Settings,
			Tau:        []float64(d.DRT.Tau),
			Gamma:      []float64(d.DRT.Gamma),
			GammaImag:  []float64(d.DRT.GammaImag),
			Lambda:     float64(d.DRT.Lambda),
			Chisqr:     float64(d.DRT.Chisqr),
			Statistics: statsFromDoc(d.DRT.Statistics),
		}
	case d.Fit != nil:
		r.Fit = &domain.FitOutput{
			Settings:   d.Fit.Settings,
			Circuit:    d.Fit.Circuit,
			Parameters: paramsFromDoc(d.Fit.Parameters),
			Chisqr:     float64(d.Fit.Chisqr),
			Statistics: statsFromDoc(d.Fit.Statistics),
		}
	case d.Simulation != nil:
		r.Simulation = &domain.SimulationOutput{Settings: domain.SimulationSettings{
			Circuit:         d.Simulation.Circuit,
			Parameters:      paramsFromDoc(d.Simulation.Parameters),
			MinFrequency:    float64(d.Simulation.MinFrequency),
			MaxFrequency:    float64(d.Simulation.MaxFrequency),
			PointsPerDecade: d.Simulation.PointsPerDecade,
		}}
	}
	return r
}

func plotFromDoc(d plotDoc) domain.PlotDescriptor {
	p := domain.PlotDescriptor{ID: d.ID, Label: d.Label, Kind: d.Kind}
	for _, item := range d.Items {
		p.Items = append(p.Items, domain.PlotItem{Ref: item.Ref, Style: item.Style})
	}
	return p
}

func paramsFromDoc(in []parameterDoc) []domain.Parameter {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Parameter, len(in))
	for i, p := range in {
		out[i] = domain.Parameter{Element: p.Element, Symbol: p.Symbol, Value: float64(p.Value), StdErr: float64(p.StdErr), Fixed: p.Fixed}
	}
	return out
}

func nilIfEmptyMask(m map[int]bool) map[int]bool {
	m = domain.CloneMask(m)
	if len(m) == 0 {
		return nil
	}
	return m
}
