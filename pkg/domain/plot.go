package domain

import "fmt"

// PlotKind selects the coordinate system of a plot descriptor.
type PlotKind string

// Supported plot kinds.
const (
	PlotNyquist       PlotKind = "nyquist"
	PlotBodeMagnitude PlotKind = "bode-magnitude"
	PlotBodePhase     PlotKind = "bode-phase"
	PlotRealImaginary PlotKind = "real-imaginary"
	PlotDRT           PlotKind = "drt"
)

// Valid reports whether k is a known plot kind.
func (k PlotKind) Valid() bool {
	switch k {
	case PlotNyquist, PlotBodeMagnitude, PlotBodePhase, PlotRealImaginary, PlotDRT:
		return true
	}
	return false
}

// Style holds the per-item overrides applied when a referenced entity is drawn.
// A zero Color means "use the palette default".
type Style struct {
	Color      [4]float64 `json:"color"`
	Marker     int        `json:"marker"`
	ShowLine   bool       `json:"show_line"`
	ShowLegend bool       `json:"show_legend"`
	ZOrder     int        `json:"z_order"`
}

// PlotItem references a series or result by identifier. It never embeds the data.
type PlotItem struct {
	Ref   string `json:"ref"`
	Style Style  `json:"style"`
}

// PlotDescriptor is a user-composed, reference-only description of one figure.
type PlotDescriptor struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  PlotKind   `json:"kind"`
	Items []PlotItem `json:"items"`
}

// Validate checks the descriptor kind and that no reference is listed twice.
func (p PlotDescriptor) Validate() error {
	if !p.Kind.Valid() {
		return Invalid(EntityPlot, p.ID, fmt.Sprintf("unknown plot kind %q", p.Kind))
	}
	seen := make(map[string]struct{}, len(p.Items))
	for _, item := range p.Items {
		if item.Ref == "" {
			return Invalid(EntityPlot, p.ID, "empty reference")
		}
		if _, dup := seen[item.Ref]; dup {
			return Invalid(EntityPlot, p.ID, fmt.Sprintf("reference %s listed twice", item.Ref))
		}
		seen[item.Ref] = struct{}{}
	}
	return nil
}

// ClonePlot returns a deep copy of p.
func ClonePlot(p PlotDescriptor) PlotDescriptor {
	if len(p.Items) == 0 {
		p.Items = nil
	} else {
		items := make([]PlotItem, len(p.Items))
		copy(items, p.Items)
		p.Items = items
	}
	return p
}
