package domain

// ResultGroup holds the ordered results of one series, keyed by kind.
type ResultGroup struct {
	Tests []Result `json:"test"`
	DRTs  []Result `json:"drt"`
	Fits  []Result `json:"fit"`
}

// Of returns the slice for kind k.
func (g ResultGroup) Of(k ResultKind) []Result {
	switch k {
	case KindTest:
		return g.Tests
	case KindDRT:
		return g.DRTs
	case KindFit:
		return g.Fits
	}
	return nil
}

// Len returns the number of results in the group.
func (g ResultGroup) Len() int { return len(g.Tests) + len(g.DRTs) + len(g.Fits) }

// State is the complete value graph of one project. Slices are in sibling
// order; Results is keyed by series identifier.
type State struct {
	Project     Project                `json:"project"`
	Series      []Series               `json:"series"`
	Results     map[string]ResultGroup `json:"results"`
	Simulations []Result               `json:"simulations"`
	Plots       []PlotDescriptor       `json:"plots"`
}

// EntityCount returns the number of series, results, simulations and plots.
func (s State) EntityCount() int {
	n := len(s.Series) + len(s.Simulations) + len(s.Plots)
	for _, g := range s.Results {
		n += g.Len()
	}
	return n
}

// CloneState returns a deep copy of s.
func CloneState(s State) State {
	out := State{Project: s.Project}
	if s.Series != nil {
		out.Series = make([]Series, len(s.Series))
		for i, v := range s.Series {
			out.Series[i] = CloneSeries(v)
		}
	}
	if s.Results != nil {
		out.Results = make(map[string]ResultGroup, len(s.Results))
		for k, g := range s.Results {
			out.Results[k] = ResultGroup{
				Tests: cloneResults(g.Tests),
				DRTs:  cloneResults(g.DRTs),
				Fits:  cloneResults(g.Fits),
			}
		}
	}
	out.Simulations = cloneResults(s.Simulations)
	if s.Plots != nil {
		out.Plots = make([]PlotDescriptor, len(s.Plots))
		for i, p := range s.Plots {
			out.Plots[i] = ClonePlot(p)
		}
	}
	return out
}

func cloneResults(in []Result) []Result {
	if len(in) == 0 {
		return nil
	}
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = CloneResult(r)
	}
	return out
}
