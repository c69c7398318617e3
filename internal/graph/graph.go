// Package graph provides the in-memory entity graph of a single project.
//
// Entities are stored in arenas keyed by identifier; sibling order is kept in
// explicit order slices so that a removed entity can be re-inserted at its
// original position. All operations are pure with respect to undo history:
// recording reversible actions is the job of the history package. Values
// returned by the graph are deep copies.
//
// A Graph is not safe for concurrent mutation; the owning session serializes
// writers.
package graph

import (
	"eiscore/pkg/domain"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IDFunc generates entity identifiers.
type IDFunc func() string

// NewID returns a random (version 4) UUID string.
func NewID() string { return uuid.NewString() }

type groupKey struct {
	series string
	kind   domain.ResultKind
}

// Graph is the arena-backed entity graph of one project.
type Graph struct {
	project     domain.Project
	series      map[string]domain.Series
	seriesOrder []string
	results     map[string]domain.Result
	resultOrder map[groupKey][]string
	plots       map[string]domain.PlotDescriptor
	plotOrder   []string

	newID IDFunc
	nowFn func() time.Time
}

// Option customises a Graph.
type Option func(*Graph)

// WithIDFunc overrides identifier generation.
func WithIDFunc(fn IDFunc) Option {
	return func(g *Graph) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(fn func() time.Time) Option {
	return func(g *Graph) {
		if fn != nil {
			g.nowFn = fn
		}
	}
}

func newGraph(opts []Option) *Graph {
	g := &Graph{
		series:      make(map[string]domain.Series),
		results:     make(map[string]domain.Result),
		resultOrder: make(map[groupKey][]string),
		plots:       make(map[string]domain.PlotDescriptor),
		newID:       NewID,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New returns an empty graph for a new project. A missing project ID or
// creation time is filled in.
func New(project domain.Project, opts ...Option) *Graph {
	g := newGraph(opts)
	if project.ID == "" {
		project.ID = g.newID()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = g.nowFn()
	}
	project.CreatedAt = project.CreatedAt.UTC()
	if project.Label == "" {
		project.Label = defaultProjectLabel
	}
	g.project = project
	return g
}

// NewEntityID draws an identifier from the graph's generator.
func (g *Graph) NewEntityID() string { return g.newID() }

// Now returns the graph clock reading.
func (g *Graph) Now() time.Time { return g.nowFn() }

// --- project ---

// Project returns the project metadata.
func (g *Graph) Project() domain.Project { return g.project }

// SetProjectLabel replaces the project label and returns the previous one.
func (g *Graph) SetProjectLabel(label string) (string, error) {
	if label == "" {
		return "", domain.Invalid(domain.EntityProject, g.project.ID, "label must not be empty")
	}
	prev := g.project.Label
	g.project.Label = label
	return prev, nil
}

// SetNotes replaces the free-text notes and returns the previous text.
func (g *Graph) SetNotes(notes string) string {
	prev := g.project.Notes
	g.project.Notes = notes
	return prev
}

// SetPath sets the document location used by the next implicit save.
func (g *Graph) SetPath(path string) string {
	prev := g.project.Path
	g.project.Path = path
	return prev
}

// --- series ---

// AddSeries appends a series. An empty ID is assigned and the label is
// disambiguated against the other series labels.
func (g *Graph) AddSeries(s domain.Series) (domain.Series, error) {
	return g.InsertSeries(s, len(g.seriesOrder))
}

// InsertSeries inserts a series at index (clamped). It keeps a preset ID,
// which is how undo re-inserts a deleted series.
func (g *Graph) InsertSeries(s domain.Series, index int) (domain.Series, error) {
	s = domain.CloneSeries(s)
	if s.ID == "" {
		s.ID = g.newID()
	}
	if g.exists(s.ID) {
		return domain.Series{}, domain.Invalid(domain.EntitySeries, s.ID, "identifier already in use")
	}
	if err := s.Validate(); err != nil {
		return domain.Series{}, err
	}
	s.Label = UniqueLabel(s.Label, g.seriesLabelTaken(""))
	g.series[s.ID] = s
	g.seriesOrder = insertAt(g.seriesOrder, s.ID, index)
	return domain.CloneSeries(s), nil
}

// Series returns a copy of the series with the given ID.
func (g *Graph) Series(id string) (domain.Series, bool) {
	s, ok := g.series[id]
	if !ok {
		return domain.Series{}, false
	}
	return domain.CloneSeries(s), true
}

// ListSeries returns every series in sibling order.
func (g *Graph) ListSeries() []domain.Series {
	out := make([]domain.Series, 0, len(g.seriesOrder))
	for _, id := range g.seriesOrder {
		out = append(out, domain.CloneSeries(g.series[id]))
	}
	return out
}

// SeriesIndex returns the ordinal of a series among its siblings.
func (g *Graph) SeriesIndex(id string) int { return indexOf(g.seriesOrder, id) }

// RenameSeries changes a series label and returns the previous label. The new
// label is disambiguated; the applied label is returned as well.
func (g *Graph) RenameSeries(id, label string) (prev, applied string, err error) {
	s, ok := g.series[id]
	if !ok {
		return "", "", domain.NotFound(domain.EntitySeries, id)
	}
	prev = s.Label
	s.Label = UniqueLabel(label, g.seriesLabelTaken(id))
	g.series[id] = s
	return prev, s.Label, nil
}

// SetSeriesPath replaces the source file path and returns the previous one.
func (g *Graph) SetSeriesPath(id, path string) (string, error) {
	s, ok := g.series[id]
	if !ok {
		return "", domain.NotFound(domain.EntitySeries, id)
	}
	prev := s.Path
	s.Path = path
	g.series[id] = s
	return prev, nil
}

// Mask returns a copy of the current exclusion mask of a series.
func (g *Graph) Mask(id string) (map[int]bool, error) {
	s, ok := g.series[id]
	if !ok {
		return nil, domain.NotFound(domain.EntitySeries, id)
	}
	return domain.CloneMask(s.Mask), nil
}

// SetMask replaces the exclusion mask and returns the previous mask.
func (g *Graph) SetMask(id string, mask map[int]bool) (map[int]bool, error) {
	s, ok := g.series[id]
	if !ok {
		return nil, domain.NotFound(domain.EntitySeries, id)
	}
	for i, v := range mask {
		if v && (i < 0 || i >= s.Len()) {
			return nil, domain.Invalid(domain.EntitySeries, id, fmt.Sprintf("mask index %d out of range", i))
		}
	}
	prev := s.Mask
	s.Mask = domain.CloneMask(mask)
	g.series[id] = s
	return domain.CloneMask(prev), nil
}

// RemovedResult is a result together with its ordinal among its siblings.
type RemovedResult struct {
	Result domain.Result
	Index  int
}

// RemovedSeries carries everything needed to re-insert a deleted series and
// its owned results at their original positions.
type RemovedSeries struct {
	Series  domain.Series
	Index   int
	Results []RemovedResult
}

// DeleteSeries removes a series and cascades to its results.
func (g *Graph) DeleteSeries(id string) (RemovedSeries, error) {
	s, ok := g.series[id]
	if !ok {
		return RemovedSeries{}, domain.NotFound(domain.EntitySeries, id)
	}
	removed := RemovedSeries{Series: domain.CloneSeries(s), Index: indexOf(g.seriesOrder, id)}
	for _, kind := range domain.SeriesResultKinds {
		key := groupKey{series: id, kind: kind}
		for i, rid := range g.resultOrder[key] {
			removed.Results = append(removed.Results, RemovedResult{Result: domain.CloneResult(g.results[rid]), Index: i})
			delete(g.results, rid)
		}
		delete(g.resultOrder, key)
	}
	delete(g.series, id)
	g.seriesOrder = removeAt(g.seriesOrder, removed.Index)
	return removed, nil
}

// RestoreSeries re-inserts a deleted series and its results. Nothing is
// changed when any identifier is already taken.
func (g *Graph) RestoreSeries(r RemovedSeries) error {
	if g.exists(r.Series.ID) {
		return domain.Invalid(domain.EntitySeries, r.Series.ID, "identifier already in use")
	}
	for _, rr := range r.Results {
		if g.exists(rr.Result.ID) {
			return domain.Invalid(domain.EntityResult, rr.Result.ID, "identifier already in use")
		}
		if rr.Result.SeriesID != r.Series.ID {
			return domain.Invalid(domain.EntityResult, rr.Result.ID, "result does not belong to the restored series")
		}
	}
	if err := r.Series.Validate(); err != nil {
		return err
	}
	s := domain.CloneSeries(r.Series)
	g.series[s.ID] = s
	g.seriesOrder = insertAt(g.seriesOrder, s.ID, r.Index)
	for _, rr := range r.Results {
		res := domain.CloneResult(rr.Result)
		key := groupKey{series: s.ID, kind: res.Kind}
		g.results[res.ID] = res
		g.resultOrder[key] = insertAt(g.resultOrder[key], res.ID, rr.Index)
	}
	return nil
}

// --- results ---

// AddResult appends an analysis result to its series (or to the simulations
// when the kind is not series-bound).
func (g *Graph) AddResult(r domain.Result) (domain.Result, error) {
	key := groupKey{series: r.SeriesID, kind: r.Kind}
	return g.InsertResult(r, len(g.resultOrder[key]))
}

// InsertResult inserts a result at index (clamped) among its siblings.
func (g *Graph) InsertResult(r domain.Result, index int) (domain.Result, error) {
	r = domain.CloneResult(r)
	if r.ID == "" {
		r.ID = g.newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = g.nowFn()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if g.exists(r.ID) {
		return domain.Result{}, domain.Invalid(domain.EntityResult, r.ID, "identifier already in use")
	}
	if err := r.Validate(); err != nil {
		return domain.Result{}, err
	}
	if r.Kind.SeriesBound() {
		if _, ok := g.series[r.SeriesID]; !ok {
			return domain.Result{}, domain.NotFound(domain.EntitySeries, r.SeriesID)
		}
	}
	key := groupKey{series: r.SeriesID, kind: r.Kind}
	g.results[r.ID] = r
	g.resultOrder[key] = insertAt(g.resultOrder[key], r.ID, index)
	return domain.CloneResult(r), nil
}

// Result returns a copy of the result with the given ID.
func (g *Graph) Result(id string) (domain.Result, bool) {
	r, ok := g.results[id]
	if !ok {
		return domain.Result{}, false
	}
	return domain.CloneResult(r), true
}

// ListResults returns the results of one kind owned by a series, in order.
func (g *Graph) ListResults(seriesID string, kind domain.ResultKind) []domain.Result {
	ids := g.resultOrder[groupKey{series: seriesID, kind: kind}]
	out := make([]domain.Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CloneResult(g.results[id]))
	}
	return out
}

// ListSimulations returns the simulation results in order.
func (g *Graph) ListSimulations() []domain.Result {
	return g.ListResults("", domain.KindSimulation)
}

// CountResults returns the number of results owned by a series.
func (g *Graph) CountResults(seriesID string) int {
	n := 0
	for _, kind := range domain.SeriesResultKinds {
		n += len(g.resultOrder[groupKey{series: seriesID, kind: kind}])
	}
	return n
}

// DeleteResult removes a result and returns it with its former ordinal.
func (g *Graph) DeleteResult(id string) (RemovedResult, error) {
	r, ok := g.results[id]
	if !ok {
		return RemovedResult{}, domain.NotFound(domain.EntityResult, id)
	}
	key := groupKey{series: r.SeriesID, kind: r.Kind}
	idx := indexOf(g.resultOrder[key], id)
	g.resultOrder[key] = removeAt(g.resultOrder[key], idx)
	if len(g.resultOrder[key]) == 0 {
		delete(g.resultOrder, key)
	}
	delete(g.results, id)
	return RemovedResult{Result: domain.CloneResult(r), Index: idx}, nil
}

// --- plots ---

// AddPlot appends a plot descriptor.
func (g *Graph) AddPlot(p domain.PlotDescriptor) (domain.PlotDescriptor, error) {
	return g.InsertPlot(p, len(g.plotOrder))
}

// InsertPlot inserts a plot descriptor at index (clamped).
func (g *Graph) InsertPlot(p domain.PlotDescriptor, index int) (domain.PlotDescriptor, error) {
	p = domain.ClonePlot(p)
	if p.ID == "" {
		p.ID = g.newID()
	}
	if g.exists(p.ID) {
		return domain.PlotDescriptor{}, domain.Invalid(domain.EntityPlot, p.ID, "identifier already in use")
	}
	if err := p.Validate(); err != nil {
		return domain.PlotDescriptor{}, err
	}
	p.Label = UniqueLabel(p.Label, g.plotLabelTaken(""))
	g.plots[p.ID] = p
	g.plotOrder = insertAt(g.plotOrder, p.ID, index)
	return domain.ClonePlot(p), nil
}

// Plot returns a copy of the plot descriptor with the given ID.
func (g *Graph) Plot(id string) (domain.PlotDescriptor, bool) {
	p, ok := g.plots[id]
	if !ok {
		return domain.PlotDescriptor{}, false
	}
	return domain.ClonePlot(p), true
}

// ListPlots returns every plot descriptor in order.
func (g *Graph) ListPlots() []domain.PlotDescriptor {
	out := make([]domain.PlotDescriptor, 0, len(g.plotOrder))
	for _, id := range g.plotOrder {
		out = append(out, domain.ClonePlot(g.plots[id]))
	}
	return out
}

// RenamePlot changes a plot label; it returns the previous and applied labels.
func (g *Graph) RenamePlot(id, label string) (prev, applied string, err error) {
	p, ok := g.plots[id]
	if !ok {
		return "", "", domain.NotFound(domain.EntityPlot, id)
	}
	prev = p.Label
	p.Label = UniqueLabel(label, g.plotLabelTaken(id))
	g.plots[id] = p
	return prev, p.Label, nil
}

// SetPlotKind changes the plot kind and returns the previous kind.
func (g *Graph) SetPlotKind(id string, kind domain.PlotKind) (domain.PlotKind, error) {
	p, ok := g.plots[id]
	if !ok {
		return "", domain.NotFound(domain.EntityPlot, id)
	}
	if !kind.Valid() {
		return "", domain.Invalid(domain.EntityPlot, id, fmt.Sprintf("unknown plot kind %q", kind))
	}
	prev := p.Kind
	p.Kind = kind
	g.plots[id] = p
	return prev, nil
}

// SetPlotItems replaces the reference list and returns the previous list.
// References are not checked against the graph: they resolve lazily.
func (g *Graph) SetPlotItems(id string, items []domain.PlotItem) ([]domain.PlotItem, error) {
	p, ok := g.plots[id]
	if !ok {
		return nil, domain.NotFound(domain.EntityPlot, id)
	}
	next := domain.ClonePlot(domain.PlotDescriptor{ID: p.ID, Label: p.Label, Kind: p.Kind, Items: items})
	if err := next.Validate(); err != nil {
		return nil, err
	}
	prev := domain.ClonePlot(p).Items
	g.plots[id] = next
	return prev, nil
}

// DeletePlot removes a plot descriptor and returns it with its ordinal.
func (g *Graph) DeletePlot(id string) (domain.PlotDescriptor, int, error) {
	p, ok := g.plots[id]
	if !ok {
		return domain.PlotDescriptor{}, -1, domain.NotFound(domain.EntityPlot, id)
	}
	idx := indexOf(g.plotOrder, id)
	g.plotOrder = removeAt(g.plotOrder, idx)
	delete(g.plots, id)
	return domain.ClonePlot(p), idx, nil
}

// DanglingRefs returns the references of a plot that no longer resolve.
func (g *Graph) DanglingRefs(id string) ([]string, error) {
	p, ok := g.plots[id]
	if !ok {
		return nil, domain.NotFound(domain.EntityPlot, id)
	}
	var out []string
	for _, item := range p.Items {
		if !g.exists(item.Ref) {
			out = append(out, item.Ref)
		}
	}
	return out, nil
}

// --- lookup ---

// Entity is the result of a cross-collection lookup; exactly one pointer is set.
type Entity struct {
	Type   domain.EntityType
	Series *domain.Series
	Result *domain.Result
	Plot   *domain.PlotDescriptor
}

// Lookup finds an entity by identifier across every collection.
func (g *Graph) Lookup(id string) (Entity, bool) {
	if s, ok := g.Series(id); ok {
		return Entity{Type: domain.EntitySeries, Series: &s}, true
	}
	if r, ok := g.Result(id); ok {
		return Entity{Type: domain.EntityResult, Result: &r}, true
	}
	if p, ok := g.Plot(id); ok {
		return Entity{Type: domain.EntityPlot, Plot: &p}, true
	}
	return Entity{}, false
}

// Has reports whether any entity uses the identifier.
func (g *Graph) Has(id string) bool { return g.exists(id) }

func (g *Graph) exists(id string) bool {
	if _, ok := g.series[id]; ok {
		return true
	}
	if _, ok := g.results[id]; ok {
		return true
	}
	_, ok := g.plots[id]
	return ok
}

// --- snapshot ---

// Export returns a deep copy of the full graph state. Every series has an
// entry in Results, possibly empty; collections are never nil.
func (g *Graph) Export() domain.State {
	st := domain.State{
		Project:     g.project,
		Series:      g.ListSeries(),
		Results:     make(map[string]domain.ResultGroup, len(g.seriesOrder)),
		Simulations: g.ListSimulations(),
		Plots:       g.ListPlots(),
	}
	for _, id := range g.seriesOrder {
		st.Results[id] = domain.ResultGroup{
			Tests: nilIfEmpty(g.ListResults(id, domain.KindTest)),
			DRTs:  nilIfEmpty(g.ListResults(id, domain.KindDRT)),
			Fits:  nilIfEmpty(g.ListResults(id, domain.KindFit)),
		}
	}
	return st
}

// FromState builds a graph from a state value, validating identifiers,
// references between results and series, and every record.
func FromState(st domain.State, opts ...Option) (*Graph, error) {
	g := newGraph(opts)
	if st.Project.ID == "" {
		return nil, domain.Invalid(domain.EntityProject, "", "project id required")
	}
	g.project = st.Project
	for _, s := range st.Series {
		if s.ID == "" || g.exists(s.ID) {
			return nil, domain.Invalid(domain.EntitySeries, s.ID, "missing or duplicate identifier")
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		g.series[s.ID] = domain.CloneSeries(s)
		g.seriesOrder = append(g.seriesOrder, s.ID)
	}
	groups := make([]string, 0, len(st.Results))
	for id := range st.Results {
		groups = append(groups, id)
	}
	sort.Strings(groups)
	for _, seriesID := range groups {
		if _, ok := g.series[seriesID]; !ok {
			return nil, domain.NotFound(domain.EntitySeries, seriesID)
		}
		group := st.Results[seriesID]
		for _, kind := range domain.SeriesResultKinds {
			for _, r := range group.Of(kind) {
				if r.Kind != kind || r.SeriesID != seriesID {
					return nil, domain.Invalid(domain.EntityResult, r.ID, "result filed under the wrong series or kind")
				}
				if err := g.loadResult(r); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, r := range st.Simulations {
		if r.Kind != domain.KindSimulation {
			return nil, domain.Invalid(domain.EntityResult, r.ID, "non-simulation result in simulation collection")
		}
		if err := g.loadResult(r); err != nil {
			return nil, err
		}
	}
	for _, p := range st.Plots {
		if p.ID == "" || g.exists(p.ID) {
			return nil, domain.Invalid(domain.EntityPlot, p.ID, "missing or duplicate identifier")
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		g.plots[p.ID] = domain.ClonePlot(p)
		g.plotOrder = append(g.plotOrder, p.ID)
	}
	return g, nil
}

func (g *Graph) loadResult(r domain.Result) error {
	if r.ID == "" || g.exists(r.ID) {
		return domain.Invalid(domain.EntityResult, r.ID, "missing or duplicate identifier")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	key := groupKey{series: r.SeriesID, kind: r.Kind}
	r = domain.CloneResult(r)
	g.results[r.ID] = r
	g.resultOrder[key] = append(g.resultOrder[key], r.ID)
	return nil
}

// --- helpers ---

func (g *Graph) seriesLabelTaken(except string) func(string) bool {
	return func(label string) bool {
		for id, s := range g.series {
			if id != except && s.Label == label {
				return true
			}
		}
		return false
	}
}

func (g *Graph) plotLabelTaken(except string) func(string) bool {
	return func(label string) bool {
		for id, p := range g.plots {
			if id != except && p.Label == label {
				return true
			}
		}
		return false
	}
}

func nilIfEmpty(in []domain.Result) []domain.Result {
	if len(in) == 0 {
		return nil
	}
	return in
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func insertAt(ids []string, id string, index int) []string {
	if index < 0 {
		index = 0
	}
	if index > len(ids) {
		index = len(ids)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = id
	return ids
}

func removeAt(ids []string, index int) []string {
	if index < 0 || index >= len(ids) {
		return ids
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:index]...)
	return append(out, ids[index+1:]...)
}
