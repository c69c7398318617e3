// Package core is the command layer over the project session model. A
// Workspace holds the open projects of one process; each project is driven
// through its Session, which records every mutation in the undo history,
// counts it toward the next recovery snapshot and serializes access to the
// project's entity graph.
package core

import (
	"context"
	"eiscore/internal/blob"
	"eiscore/internal/codec"
	"eiscore/internal/config"
	"eiscore/internal/engine"
	"eiscore/internal/graph"
	"eiscore/internal/history"
	"eiscore/internal/merge"
	"eiscore/internal/recovery"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultProjectLabel = "Project"

// Option customises a Workspace.
type Option func(*options)

type options struct {
	engine     domain.Engine
	logger     *slog.Logger
	registerer prometheus.Registerer
	docs       domain.DocumentStore
	blobs      blob.Store
	graphOpts  []graph.Option
}

// WithEngine sets the external numerical engine. Simulations always run on
// the built-in simulator; without an external engine every other kind fails
// as unsupported.
func WithEngine(e domain.Engine) Option { return func(o *options) { o.engine = e } }

// WithLogger sets the workspace logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegisterer registers the workspace metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithDocumentStore overrides the document store selected by the config.
func WithDocumentStore(d domain.DocumentStore) Option { return func(o *options) { o.docs = d } }

// WithBlobStore overrides the recovery-area backend selected by the config.
func WithBlobStore(b blob.Store) Option { return func(o *options) { o.blobs = b } }

// WithGraphOptions passes identifier and clock overrides to every graph the
// workspace builds.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) { o.graphOpts = append(o.graphOpts, opts...) }
}

type entry struct {
	label string
	path  string
}

// Workspace owns the open sessions, the recovery manager and the engine
// dispatcher. It is built from an explicitly opened config.Context.
type Workspace struct {
	cc        *config.Context
	docs      domain.DocumentStore
	ownsDocs  bool
	rec       *recovery.Manager
	engine    domain.Engine
	dispatch  *engine.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	graphOpts []graph.Option

	// mu guards the registry below. It is never held while acquiring a
	// session lock; sessions may take it while holding their own.
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	entries  map[string]entry
	closed   bool
}

// NewWorkspace builds a workspace from the configuration context.
func NewWorkspace(ctx context.Context, cc *config.Context, opts ...Option) (*Workspace, error) {
	if cc == nil {
		return nil, errors.New("core: nil config context")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg := cc.Config()
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	w := &Workspace{
		cc:        cc,
		docs:      o.docs,
		metrics:   NewMetrics(o.registerer),
		logger:    o.logger,
		graphOpts: o.graphOpts,
		sessions:  make(map[string]*Session),
		entries:   make(map[string]entry),
	}
	if w.docs == nil {
		docs, err := OpenDocumentStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		w.docs, w.ownsDocs = docs, true
	}
	blobs := o.blobs
	if blobs == nil {
		var err error
		if blobs, err = blob.Open(ctx, cfg.BlobOptions()); err != nil {
			w.closeDocs()
			return nil, fmt.Errorf("open recovery area: %w", err)
		}
	}
	w.rec = recovery.New(blobs, w.docs,
		recovery.WithInterval(cfg.Snapshot.Interval),
		recovery.WithLogger(o.logger),
		recovery.WithRecorder(w.metrics),
	)
	w.engine = engine.Router{External: o.engine}
	w.dispatch = engine.NewDispatcher(w.engine, cfg.Engine.Workers, o.logger)
	return w, nil
}

// Config returns the settings the workspace was built with.
func (w *Workspace) Config() config.Config { return w.cc.Config() }

// Recent returns the recent project locations, most recent first.
func (w *Workspace) Recent() []string { return w.cc.Recent() }

// NewProject opens an empty, unsaved project. The label is made unique among
// open projects.
func (w *Workspace) NewProject(label string) (*Session, error) {
	if label == "" {
		label = defaultProjectLabel
	}
	g := graph.New(domain.Project{Label: label}, w.graphOpts...)
	s, err := w.adopt(g, false)
	if err != nil {
		return nil, err
	}
	w.logger.Info("project created", "project", s.id, "label", g.Project().Label)
	return s, nil
}

// Open loads the document at location. Opening a location that is already
// open returns the existing session. A failed load opens nothing.
func (w *Workspace) Open(ctx context.Context, location string) (*Session, error) {
	if location == "" {
		return nil, domain.Invalid(domain.EntityProject, "", "empty document location")
	}
	if s := w.byPath(location); s != nil {
		return s, nil
	}
	data, err := w.docs.Read(ctx, location)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Location: location, Err: err}
	}
	st, err := codec.Decode(data)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Location: location, Err: err}
	}
	st.Project.Path = location
	g, err := graph.FromState(st, w.graphOpts...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Location: location, Err: err}
	}
	s, err := w.adopt(g, false)
	if err != nil {
		return nil, err
	}
	w.cc.Touch(location)
	w.logger.Info("project opened", "project", s.id, "location", location)
	return s, nil
}

// Session returns the open session of a project.
func (w *Workspace) Session(id string) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	if !ok {
		return nil, domain.NotFound(domain.EntityProject, id)
	}
	return s, nil
}

// Sessions lists the open sessions in the order they were opened.
func (w *Workspace) Sessions() []*Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Session, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.sessions[id])
	}
	return out
}

// Close closes a project and deletes its recovery snapshot. Unsaved changes
// are dropped; callers decide whether to save first.
func (w *Workspace) Close(ctx context.Context, id string) error {
	w.mu.Lock()
	s, ok := w.sessions[id]
	if ok {
		w.unregister(id)
	}
	w.mu.Unlock()
	if !ok {
		return domain.NotFound(domain.EntityProject, id)
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	w.logger.Info("project closed", "project", id)
	return w.rec.Discard(ctx, id)
}

// Merge combines open projects into a new unsaved project. Every input is
// locked for the duration so no source mutation is observed mid-merge.
func (w *Workspace) Merge(ctx context.Context, label string, ids ...string) (*Session, merge.Report, error) {
	if len(ids) == 0 {
		return nil, merge.Report{}, domain.Invalid(domain.EntityProject, "", "merge needs at least one project")
	}
	sources := make([]*Session, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, merge.Report{}, domain.Invalid(domain.EntityProject, id, "listed twice")
		}
		seen[id] = true
		s, err := w.Session(id)
		if err != nil {
			return nil, merge.Report{}, err
		}
		sources = append(sources, s)
	}
	locked := append([]*Session(nil), sources...)
	sort.Slice(locked, func(i, j int) bool { return locked[i].id < locked[j].id })
	for _, s := range locked {
		s.mu.Lock()
	}
	merged, report, err := w.mergeLocked(label, sources)
	for _, s := range locked {
		s.mu.Unlock()
	}
	if err != nil {
		return nil, report, err
	}
	g, err := graph.FromState(merged, w.graphOpts...)
	if err != nil {
		return nil, report, err
	}
	s, err := w.adopt(g, true)
	if err != nil {
		return nil, report, err
	}
	w.logger.Info("projects merged", "project", s.id, "sources", len(sources))
	return s, report, nil
}

func (w *Workspace) mergeLocked(label string, sources []*Session) (domain.State, merge.Report, error) {
	states := make([]domain.State, 0, len(sources))
	for _, s := range sources {
		if err := s.writableLocked(); err != nil {
			return domain.State{}, merge.Report{}, err
		}
		states = append(states, s.g.Export())
	}
	return merge.New(w.graphOpts...).Merge(label, states...)
}

// RecoveryCandidates lists snapshots left by sessions that did not close
// cleanly. Projects that are currently open are not offered.
func (w *Workspace) RecoveryCandidates(ctx context.Context) ([]recovery.Candidate, error) {
	all, err := w.rec.Scan(ctx)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := all[:0]
	for _, c := range all {
		if _, open := w.sessions[c.ProjectID]; !open {
			out = append(out, c)
		}
	}
	return out, nil
}

// Recover loads a project's snapshot. When the project is open its graph is
// replaced; otherwise it is opened. Either way the undo history starts empty
// and the project is marked unsaved.
func (w *Workspace) Recover(ctx context.Context, projectID string) (*Session, error) {
	st, err := w.rec.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromState(st, w.graphOpts...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "recover", Location: recovery.Key(projectID), Err: err}
	}
	if s, err := w.Session(projectID); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, errClosed(projectID)
		}
		s.install(g, true)
		w.logger.Info("project recovered in place", "project", projectID)
		return s, nil
	}
	s, err := w.adopt(g, true)
	if err != nil {
		return nil, err
	}
	w.logger.Info("project recovered", "project", projectID)
	return s, nil
}

// DiscardRecovery deletes a snapshot the user declined to recover.
func (w *Workspace) DiscardRecovery(ctx context.Context, projectID string) error {
	return w.rec.Discard(ctx, projectID)
}

// Shutdown snapshots every open project with unsaved changes and releases
// the document store. The workspace is unusable afterwards.
func (w *Workspace) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	sessions := make([]*Session, 0, len(w.order))
	for _, id := range w.order {
		sessions = append(sessions, w.sessions[id])
	}
	w.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.closeDocs(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *Workspace) closeDocs() error {
	if !w.ownsDocs {
		return nil
	}
	if c, ok := w.docs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// adopt registers a graph as a new session. The project label is made unique
// among open projects before the session becomes visible.
func (w *Workspace) adopt(g *graph.Graph, dirty bool) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.New("core: workspace is shut down")
	}
	p := g.Project()
	if _, dup := w.sessions[p.ID]; dup {
		return nil, domain.Invalid(domain.EntityProject, p.ID, "a project with this identifier is already open")
	}
	label := w.uniqueLabelLocked(p.ID, p.Label)
	if label != p.Label {
		if _, err := g.SetProjectLabel(label); err != nil {
			return nil, err
		}
	}
	s := &Session{
		w:     w,
		id:    p.ID,
		g:     g,
		hist:  history.New(w.cc.Config().History.Limit),
		dirty: dirty,
	}
	w.sessions[p.ID] = s
	w.order = append(w.order, p.ID)
	w.entries[p.ID] = entry{label: label, path: p.Path}
	return s, nil
}

func (w *Workspace) unregister(id string) {
	delete(w.sessions, id)
	delete(w.entries, id)
	for i, other := range w.order {
		if other == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *Workspace) uniqueLabelLocked(id, label string) string {
	return graph.UniqueLabel(label, func(candidate string) bool {
		for other, e := range w.entries {
			if other != id && e.label == candidate {
				return true
			}
		}
		return false
	})
}

// claimLabel reserves a label for project id, disambiguated against the
// other open projects, and returns the label actually reserved.
func (w *Workspace) claimLabel(id, label string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	applied := w.uniqueLabelLocked(id, label)
	e := w.entries[id]
	e.label = applied
	w.entries[id] = e
	return applied
}

// sync records the current label and location of an open project.
func (w *Workspace) sync(p domain.Project) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sessions[p.ID]; ok {
		w.entries[p.ID] = entry{label: p.Label, path: p.Path}
	}
}

func (w *Workspace) byPath(location string) *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range w.entries {
		if e.path == location {
			return w.sessions[id]
		}
	}
	return nil
}
