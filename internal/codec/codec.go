// Package codec converts project state to and from versioned JSON documents.
//
// Session mode writes every field verbatim and round-trips exactly; it is
// used for recovery snapshots. Storage mode omits arrays that can be rebuilt
// from other fields (frequency axes, circuit model values, residuals) and is
// used for saved project files. Older documents are upgraded through a linear
// migration chain before they are interpreted.
package codec

import (
	"encoding/json"
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"fmt"
)

// CurrentVersion is the document format version written by Encode.
const CurrentVersion = 3

// Mode selects the document representation.
type Mode string

// Document modes.
const (
	ModeSession Mode = "session"
	ModeStorage Mode = "storage"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeSession || m == ModeStorage }

type header struct {
	Version *int `json:"version"`
	Mode    Mode `json:"mode"`
}

// Header describes a document without decoding it.
type Header struct {
	Version int
	Mode    Mode
}

// Peek reads the version marker and mode of a document. Documents without a
// version marker predate versioning and are reported as version 1.
func Peek(data []byte) (Header, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("codec: read header: %w", err)
	}
	out := Header{Version: 1, Mode: h.Mode}
	if h.Version != nil {
		out.Version = *h.Version
	}
	if out.Mode == "" {
		out.Mode = ModeSession
	}
	return out, nil
}

// Encode serializes st. The state is validated first; an invalid state is
// never written.
func Encode(st domain.State, mode Mode) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("codec: unknown mode %q", mode)
	}
	g, err := graph.FromState(st)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	st = g.Export()
	doc := document{
		Version:     CurrentVersion,
		Mode:        mode,
		Project:     projectDoc{ID: st.Project.ID, Label: st.Project.Label, Notes: st.Project.Notes, Path: st.Project.Path, CreatedAt: st.Project.CreatedAt},
		Series:      make([]seriesDoc, 0, len(st.Series)),
		Results:     make(map[string]resultGroupDoc, len(st.Results)),
		Simulations: make([]resultDoc, 0, len(st.Simulations)),
		Plots:       make([]plotDoc, 0, len(st.Plots)),
	}
	series := make(map[string]domain.Series, len(st.Series))
	for _, s := range st.Series {
		series[s.ID] = s
		doc.Series = append(doc.Series, seriesToDoc(s))
	}
	encodeResults := func(rs []domain.Result) []resultDoc {
		if len(rs) == 0 {
			return nil
		}
		out := make([]resultDoc, 0, len(rs))
		for _, r := range rs {
			d := resultToDoc(r)
			if mode == ModeStorage {
				d.Derived = omit(r, series)
				stripDerived(&d)
			}
			out = append(out, d)
		}
		return out
	}
	for id, group := range st.Results {
		doc.Results[id] = resultGroupDoc{
			Test: encodeResults(group.Tests),
			DRT:  encodeResults(group.DRTs),
			Fit:  encodeResults(group.Fits),
		}
	}
	if sims := encodeResults(st.Simulations); sims != nil {
		doc.Simulations = sims
	}
	for _, p := range st.Plots {
		doc.Plots = append(doc.Plots, plotToDoc(p))
	}
	var data []byte
	if mode == ModeStorage {
		data, err = json.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

func stripDerived(d *resultDoc) {
	for _, field := range d.Derived {
		switch field {
		case derivedFrequencies:
			d.Frequencies = nil
		case derivedModel:
			d.Real, d.Imag = nil, nil
		case derivedResiduals:
			d.ResidualsReal, d.ResidualsImag = nil, nil
		}
	}
}

// Decode parses a document of any supported version. It fails with a
// *domain.MigrationError when the version is newer than CurrentVersion or a
// migration step cannot interpret the legacy data. The returned state is
// validated and in canonical form; nothing partial is ever returned.
func Decode(data []byte) (domain.State, error) {
	h, err := Peek(data)
	if err != nil {
		return domain.State{}, err
	}
	if h.Version > CurrentVersion {
		return domain.State{}, &domain.MigrationError{From: h.Version, To: CurrentVersion, Err: domain.ErrUnsupportedVersion}
	}
	if h.Version < 1 {
		return domain.State{}, &domain.MigrationError{From: h.Version, To: CurrentVersion, Err: fmt.Errorf("%w: version %d", domain.ErrInvalid, h.Version)}
	}
	if h.Version < CurrentVersion {
		if data, err = upgrade(data, h.Version); err != nil {
			return domain.State{}, err
		}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.State{}, fmt.Errorf("codec: decode: %w", err)
	}
	if !doc.Mode.Valid() {
		return domain.State{}, fmt.Errorf("codec: decode: unknown mode %q", doc.Mode)
	}
	st, err := stateFromDoc(doc)
	if err != nil {
		return domain.State{}, fmt.Errorf("codec: decode: %w", err)
	}
	g, err := graph.FromState(st)
	if err != nil {
		return domain.State{}, fmt.Errorf("codec: decode: %w", err)
	}
	return g.Export(), nil
}

func upgrade(data []byte, from int) ([]byte, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, &domain.MigrationError{From: from, To: CurrentVersion, Err: err}
	}
	for _, m := range migrations[from-1:] {
		if err := m.apply(tree); err != nil {
			return nil, &domain.MigrationError{From: m.from, To: m.to, Err: fmt.Errorf("%s: %w", m.name, err)}
		}
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, &domain.MigrationError{From: from, To: CurrentVersion, Err: err}
	}
	return out, nil
}

func stateFromDoc(doc document) (domain.State, error) {
	st := domain.State{
		Project: domain.Project{
			ID:        doc.Project.ID,
			Label:     doc.Project.Label,
			Notes:     doc.Project.Notes,
			Path:      doc.Project.Path,
			CreatedAt: doc.Project.CreatedAt,
		},
		Results: make(map[string]domain.ResultGroup, len(doc.Results)),
	}
	series := make(map[string]domain.Series, len(doc.Series))
	for _, d := range doc.Series {
		s := seriesFromDoc(d)
		series[s.ID] = s
		st.Series = append(st.Series, s)
	}
	decodeResults := func(docs []resultDoc, seriesID string, kind domain.ResultKind) ([]domain.Result, error) {
		var out []domain.Result
		for _, d := range docs {
			if d.Kind != kind {
				return nil, fmt.Errorf("result %s: kind %q filed under %q", d.ID, d.Kind, kind)
			}
			r := resultFromDoc(d, seriesID)
			if r.Kind == domain.KindSimulation && r.Simulation == nil {
				return nil, domain.Invalid(domain.EntityResult, r.ID, "simulation payload missing")
			}
			if doc.Mode == ModeStorage {
				if err := restore(&r, d.Derived, series); err != nil {
					return nil, err
				}
			} else if len(d.Derived) > 0 {
				return nil, fmt.Errorf("result %s: derived fields in a session document", d.ID)
			}
			out = append(out, r)
		}
		return out, nil
	}
	var err error
	for id, g := range doc.Results {
		var group domain.ResultGroup
		if group.Tests, err = decodeResults(g.Test, id, domain.KindTest); err != nil {
			return domain.State{}, err
		}
		if group.DRTs, err = decodeResults(g.DRT, id, domain.KindDRT); err != nil {
			return domain.State{}, err
		}
		if group.Fits, err = decodeResults(g.Fit, id, domain.KindFit); err != nil {
			return domain.State{}, err
		}
		st.Results[id] = group
	}
	if st.Simulations, err = decodeResults(doc.Simulations, "", domain.KindSimulation); err != nil {
		return domain.State{}, err
	}
	for _, d := range doc.Plots {
		st.Plots = append(st.Plots, plotFromDoc(d))
	}
	return st, nil
}

// Upgrade rewrites a document of any supported version as a current-version
// document in the same mode.
func Upgrade(data []byte) ([]byte, Header, error) {
	h, err := Peek(data)
	if err != nil {
		return nil, Header{}, err
	}
	st, err := Decode(data)
	if err != nil {
		return nil, h, err
	}
	mode := h.Mode
	if !mode.Valid() {
		mode = ModeSession
	}
	out, err := Encode(st, mode)
	return out, h, err
}
