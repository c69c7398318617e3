package domain

import (
	"fmt"
	"time"
)

// ResultKind discriminates the analysis result variants.
type ResultKind string

// Analysis result kinds.
const (
	// KindTest is a Kramers-Kronig validity test.
	KindTest ResultKind = "test"
	// KindDRT is a distribution of relaxation times estimate.
	KindDRT ResultKind = "drt"
	// KindFit is an equivalent circuit fit.
	KindFit ResultKind = "fit"
	// KindSimulation is a circuit simulation that is not tied to a series.
	KindSimulation ResultKind = "simulation"
)

// SeriesResultKinds lists the kinds owned by a measurement series, in document order.
var SeriesResultKinds = []ResultKind{KindTest, KindDRT, KindFit}

// Valid reports whether k is a known kind.
func (k ResultKind) Valid() bool {
	switch k {
	case KindTest, KindDRT, KindFit, KindSimulation:
		return true
	}
	return false
}

// SeriesBound reports whether results of this kind belong to a series.
func (k ResultKind) SeriesBound() bool { return k != KindSimulation }

// Parameter is one value of a circuit element, e.g. element "R_1" symbol "R".
// StdErr is NaN when the estimate is unknown.
type Parameter struct {
	Element string  `json:"element"`
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`
	StdErr  float64 `json:"stderr"`
	Fixed   bool    `json:"fixed,omitempty"`
}

// TestSettings configures a validity test.
type TestSettings struct {
	Test           string  `json:"test"`
	Mode           string  `json:"mode"`
	NumRC          int     `json:"num_rc"`
	AddCapacitance bool    `json:"add_capacitance"`
	AddInductance  bool    `json:"add_inductance"`
	MuCriterion    float64 `json:"mu_criterion"`
	MaxIterations  int     `json:"max_iterations"`
}

// TestOutput is the payload of a validity test result. Circuit and Parameters
// describe the fitted RC chain the model impedance was computed from.
type TestOutput struct {
	Settings     TestSettings `json:"settings"`
	Circuit      string       `json:"circuit"`
	Parameters   []Parameter  `json:"parameters"`
	NumRC        int          `json:"num_rc"`
	Mu           float64      `json:"mu"`
	PseudoChisqr float64      `json:"pseudo_chisqr"`
}

// DRTSettings configures a relaxation time analysis.
type DRTSettings struct {
	Method     string  `json:"method"`
	Mode       string  `json:"mode"`
	Lambda     float64 `json:"lambda"`
	RBFType    string  `json:"rbf_type"`
	RBFShape   string  `json:"rbf_shape"`
	Shape      float64 `json:"shape"`
	Derivative int     `json:"derivative"`
	NumSamples int     `json:"num_samples"`
	Circuit    string  `json:"circuit,omitempty"`
}

// DRTOutput is the payload of a relaxation time result.
type DRTOutput struct {
	Settings   DRTSettings        `json:"settings"`
	Tau        []float64          `json:"tau"`
	Gamma      []float64          `json:"gamma"`
	GammaImag  []float64          `json:"gamma_imag,omitempty"`
	Lambda     float64            `json:"lambda"`
	Chisqr     float64            `json:"chisqr"`
	Statistics map[string]float64 `json:"statistics,omitempty"`
}

// FitSettings configures a circuit fit.
type FitSettings struct {
	Circuit        string `json:"circuit"`
	Method         string `json:"method"`
	Weight         string `json:"weight"`
	MaxEvaluations int    `json:"max_evaluations"`
}

// FitOutput is the payload of a circuit fit result.
type FitOutput struct {
	Settings   FitSettings        `json:"settings"`
	Circuit    string             `json:"circuit"`
	Parameters []Parameter        `json:"parameters"`
	Chisqr     float64            `json:"chisqr"`
	Statistics map[string]float64 `json:"statistics,omitempty"`
}

// SimulationSettings configures a circuit simulation. The frequency axis is
// log-spaced from MaxFrequency down to MinFrequency.
type SimulationSettings struct {
	Circuit         string      `json:"circuit"`
	Parameters      []Parameter `json:"parameters"`
	MinFrequency    float64     `json:"min_frequency"`
	MaxFrequency    float64     `json:"max_frequency"`
	PointsPerDecade int         `json:"points_per_decade"`
}

// SimulationOutput is the payload of a simulation result.
type SimulationOutput struct {
	Settings SimulationSettings `json:"settings"`
}

// Settings carries exactly one settings record; the set field selects the kind.
type Settings struct {
	Test       *TestSettings       `json:"test,omitempty"`
	DRT        *DRTSettings        `json:"drt,omitempty"`
	Fit        *FitSettings        `json:"fit,omitempty"`
	Simulation *SimulationSettings `json:"simulation,omitempty"`
}

// Kind returns the kind selected by s.
func (s Settings) Kind() (ResultKind, error) {
	var kinds []ResultKind
	if s.Test != nil {
		kinds = append(kinds, KindTest)
	}
	if s.DRT != nil {
		kinds = append(kinds, KindDRT)
	}
	if s.Fit != nil {
		kinds = append(kinds, KindFit)
	}
	if s.Simulation != nil {
		kinds = append(kinds, KindSimulation)
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("%w: settings must select exactly one kind, got %d", ErrInvalid, len(kinds))
	}
	return kinds[0], nil
}

// Result is an immutable analysis output. The header fields are shared by
// every kind; exactly one payload pointer is set and it must match Kind.
// Mask is a value snapshot of the source series mask at computation time.
type Result struct {
	ID            string            `json:"id"`
	Kind          ResultKind        `json:"kind"`
	SeriesID      string            `json:"series_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Mask          map[int]bool      `json:"mask"`
	Frequencies   []float64         `json:"frequencies"`
	Real          []float64         `json:"real"`
	Imag          []float64         `json:"imag"`
	ResidualsReal []float64         `json:"residuals_real,omitempty"`
	ResidualsImag []float64         `json:"residuals_imag,omitempty"`
	Test          *TestOutput       `json:"test,omitempty"`
	DRT           *DRTOutput        `json:"drt,omitempty"`
	Fit           *FitOutput        `json:"fit,omitempty"`
	Simulation    *SimulationOutput `json:"simulation,omitempty"`
}

// Validate checks the tagged union and array shapes.
func (r Result) Validate() error {
	if !r.Kind.Valid() {
		return Invalid(EntityResult, r.ID, fmt.Sprintf("unknown kind %q", r.Kind))
	}
	set := 0
	for _, ok := range []bool{r.Test != nil, r.DRT != nil, r.Fit != nil, r.Simulation != nil} {
		if ok {
			set++
		}
	}
	if set != 1 || !r.payloadMatches() {
		return Invalid(EntityResult, r.ID, fmt.Sprintf("payload does not match kind %q", r.Kind))
	}
	if r.Kind.SeriesBound() && r.SeriesID == "" {
		return Invalid(EntityResult, r.ID, "series id required")
	}
	if !r.Kind.SeriesBound() && r.SeriesID != "" {
		return Invalid(EntityResult, r.ID, "simulations do not belong to a series")
	}
	n := len(r.Frequencies)
	if len(r.Real) != n || len(r.Imag) != n {
		return Invalid(EntityResult, r.ID, "model arrays must match the frequency axis")
	}
	if len(r.ResidualsReal) != len(r.ResidualsImag) || (len(r.ResidualsReal) != 0 && len(r.ResidualsReal) != n) {
		return Invalid(EntityResult, r.ID, "residual arrays must match the frequency axis")
	}
	if r.DRT != nil && len(r.DRT.Tau) != len(r.DRT.Gamma) {
		return Invalid(EntityResult, r.ID, "tau and gamma lengths differ")
	}
	return nil
}

func (r Result) payloadMatches() bool {
	switch r.Kind {
	case KindTest:
		return r.Test != nil
	case KindDRT:
		return r.DRT != nil
	case KindFit:
		return r.Fit != nil
	case KindSimulation:
		return r.Simulation != nil
	}
	return false
}

// Circuit returns the circuit description and parameters the model values
// were computed from, when the kind has one.
func (r Result) Circuit() (string, []Parameter, bool) {
	switch {
	case r.Test != nil:
		return r.Test.Circuit, r.Test.Parameters, r.Test.Circuit != ""
	case r.Fit != nil:
		return r.Fit.Circuit, r.Fit.Parameters, r.Fit.Circuit != ""
	case r.Simulation != nil:
		return r.Simulation.Settings.Circuit, r.Simulation.Settings.Parameters, r.Simulation.Settings.Circuit != ""
	}
	return "", nil, false
}

// Settings returns the settings record the result was produced with.
func (r Result) Settings() Settings {
	switch {
	case r.Test != nil:
		s := r.Test.Settings
		return Settings{Test: &s}
	case r.DRT != nil:
		s := r.DRT.Settings
		return Settings{DRT: &s}
	case r.Fit != nil:
		s := r.Fit.Settings
		return Settings{Fit: &s}
	case r.Simulation != nil:
		s := cloneSimulationSettings(r.Simulation.Settings)
		return Settings{Simulation: &s}
	}
	return Settings{}
}

// Stale reports whether the mask of the source series has changed since the
// result was computed. Simulations are never stale.
func (r Result) Stale(current map[int]bool) bool {
	if !r.Kind.SeriesBound() {
		return false
	}
	return !MaskEqual(r.Mask, current)
}

// CloneResult returns a deep copy of r. Empty arrays and maps come back nil.
func CloneResult(r Result) Result {
	r.Mask = CloneMask(r.Mask)
	r.Frequencies = cloneFloats(r.Frequencies)
	r.Real = cloneFloats(r.Real)
	r.Imag = cloneFloats(r.Imag)
	r.ResidualsReal = cloneFloats(r.ResidualsReal)
	r.ResidualsImag = cloneFloats(r.ResidualsImag)
	if r.Test != nil {
		t := *r.Test
		t.Parameters = cloneParameters(t.Parameters)
		r.Test = &t
	}
	if r.DRT != nil {
		d := *r.DRT
		d.Tau = cloneFloats(d.Tau)
		d.Gamma = cloneFloats(d.Gamma)
		d.GammaImag = cloneFloats(d.GammaImag)
		d.Statistics = cloneStats(d.Statistics)
		r.DRT = &d
	}
	if r.Fit != nil {
		f := *r.Fit
		f.Parameters = cloneParameters(f.Parameters)
		f.Statistics = cloneStats(f.Statistics)
		r.Fit = &f
	}
	if r.Simulation != nil {
		s := SimulationOutput{Settings: cloneSimulationSettings(r.Simulation.Settings)}
		r.Simulation = &s
	}
	return r
}

func cloneSimulationSettings(s SimulationSettings) SimulationSettings {
	s.Parameters = cloneParameters(s.Parameters)
	return s
}

func cloneParameters(in []Parameter) []Parameter {
	if len(in) == 0 {
		return nil
	}
	out := make([]Parameter, len(in))
	copy(out, in)
	return out
}

func cloneStats(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
