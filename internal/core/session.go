package core

import (
	"context"
	"eiscore/internal/codec"
	"eiscore/internal/graph"
	"eiscore/internal/history"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"sync"
)

// Session drives one open project. All methods are safe for concurrent use;
// mutations are serialized by a per-project lock, so each project has one
// logical writer at a time.
type Session struct {
	w  *Workspace
	id string

	mu      sync.Mutex
	g       *graph.Graph
	hist    *history.History
	dirty   bool
	closed  bool
	snapErr error
}

// liveState exposes the graph to the recovery manager. It is only used by
// the goroutine holding the session lock.
type liveState struct{ s *Session }

func (l liveState) ProjectID() string      { return l.s.id }
func (l liveState) Snapshot() domain.State { return l.s.g.Export() }

func errClosed(id string) error {
	return domain.Invalid(domain.EntityProject, id, "project is closed")
}

// ID returns the stable project identifier.
func (s *Session) ID() string { return s.id }

// Project returns the project metadata.
func (s *Session) Project() domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Project()
}

// State returns a deep copy of the full project graph.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Export()
}

// Dirty reports whether the project has changes that are not saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Err returns the replay failure that made the session read-only, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Err()
}

// SnapshotErr returns the last recovery snapshot failure. It is cleared by
// the next successful snapshot; editing is never blocked by it.
func (s *Session) SnapshotErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapErr
}

// CanUndo reports whether Undo would revert a step.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanUndo()
}

// CanRedo reports whether Redo would re-apply a step.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanRedo()
}

// History lists the recorded step descriptions oldest first, together with
// the number of applied steps.
func (s *Session) History() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Descriptions(), s.hist.Cursor()
}

// writableLocked fails when the session is closed or its history is
// corrupted. Callers hold s.mu.
func (s *Session) writableLocked() error {
	if s.closed {
		return errClosed(s.id)
	}
	if err := s.hist.Err(); err != nil {
		return fmt.Errorf("project %s is read-only until reloaded: %w", s.id, err)
	}
	return nil
}

// record applies e through the history and counts it. Callers hold s.mu.
func (s *Session) record(ctx context.Context, op string, e history.Entry) error {
	if err := s.writableLocked(); err != nil {
		return err
	}
	if err := s.hist.Record(s.g, e); err != nil {
		if errors.Is(err, domain.ErrCorrupted) {
			s.w.logger.Error("history corrupted", "project", s.id, "op", op, "err", err)
		}
		return err
	}
	s.w.metrics.mutation(op)
	s.changed(ctx)
	return nil
}

// changed marks the project dirty and counts one mutation toward the next
// recovery snapshot. Callers hold s.mu, which keeps the count atomic with
// the mutation.
func (s *Session) changed(ctx context.Context) {
	s.dirty = true
	s.w.sync(s.g.Project())
	wrote, err := s.w.rec.Observe(ctx, liveState{s})
	switch {
	case err != nil:
		s.snapErr = err
	case wrote:
		s.snapErr = nil
	}
}

// install replaces the graph wholesale (reload, recovery). The history is
// cleared because its entries describe the old graph. Callers hold s.mu.
func (s *Session) install(g *graph.Graph, dirty bool) {
	p := g.Project()
	if label := s.w.claimLabel(s.id, p.Label); label != p.Label {
		_, _ = g.SetProjectLabel(label)
	}
	s.g = g
	s.hist.Clear()
	s.dirty = dirty
	s.w.sync(g.Project())
}

func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dirty {
		return nil
	}
	return s.w.rec.Flush(ctx, liveState{s})
}

// Undo reverts the most recent step and returns its description. It is a
// no-op returning "" when there is nothing to undo. A failed revert makes
// the session read-only until Reload.
func (s *Session) Undo(ctx context.Context) (string, error) {
	return s.replay(ctx, "undo", s.hist.Undo)
}

// Redo re-applies the next undone step.
func (s *Session) Redo(ctx context.Context) (string, error) {
	return s.replay(ctx, "redo", s.hist.Redo)
}

func (s *Session) replay(ctx context.Context, direction string, step func(*graph.Graph) (history.Entry, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed(s.id)
	}
	e, err := step(s.g)
	s.w.metrics.replay(direction, err)
	if err != nil {
		if errors.Is(err, domain.ErrCorrupted) {
			s.w.logger.Error("history replay failed", "project", s.id, "direction", direction, "err", err)
		}
		return "", err
	}
	if e == nil {
		return "", nil
	}
	s.settleLabelLocked()
	s.changed(ctx)
	return e.Description(), nil
}

// settleLabelLocked keeps the project label unique after a replayed step put
// back a label another open project has claimed since. Callers hold s.mu.
func (s *Session) settleLabelLocked() {
	label := s.g.Project().Label
	if applied := s.w.claimLabel(s.id, label); applied != label {
		_, _ = s.g.SetProjectLabel(applied)
	}
}

// --- project ---

// Rename relabels the project. The label is made unique among open projects
// and the label actually applied is returned.
func (s *Session) Rename(ctx context.Context, label string) (string, error) {
	if label == "" {
		return "", domain.Invalid(domain.EntityProject, s.id, "label must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return "", err
	}
	prev := s.g.Project().Label
	applied := s.w.claimLabel(s.id, label)
	if err := s.record(ctx, "rename_project", history.RenameProject(applied)); err != nil {
		s.w.claimLabel(s.id, prev)
		return "", err
	}
	return applied, nil
}

// SetNotes replaces the project notes.
func (s *Session) SetNotes(ctx context.Context, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "set_notes", history.SetNotes(notes))
}

// --- persistence ---

// Save writes the project to its document location in storage mode and
// deletes its recovery snapshot.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	location := s.g.Project().Path
	if location == "" {
		return domain.Invalid(domain.EntityProject, s.id, "no document location, use save as")
	}
	return s.saveLocked(ctx, location)
}

// SaveAs writes the project to a new document location, which becomes the
// location of later saves. A failed write leaves the location unchanged.
func (s *Session) SaveAs(ctx context.Context, location string) error {
	if location == "" {
		return domain.Invalid(domain.EntityProject, s.id, "empty document location")
	}
	if other := s.w.byPath(location); other != nil && other != s {
		return domain.Invalid(domain.EntityProject, s.id, "location is open in project "+other.id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	return s.saveLocked(ctx, location)
}

func (s *Session) saveLocked(ctx context.Context, location string) error {
	st := s.g.Export()
	st.Project.Path = location
	data, err := codec.Encode(st, codec.ModeStorage)
	if err != nil {
		return &domain.PersistenceError{Op: "save", Location: location, Err: err}
	}
	if err := s.w.docs.Write(ctx, location, data); err != nil {
		s.w.logger.Error("save failed", "project", s.id, "location", location, "err", err)
		return &domain.PersistenceError{Op: "save", Location: location, Err: err}
	}
	s.g.SetPath(location)
	s.dirty = false
	s.w.sync(s.g.Project())
	s.w.cc.Touch(location)
	if err := s.w.rec.Discard(ctx, s.id); err != nil {
		s.snapErr = err
	}
	s.w.logger.Info("project saved", "project", s.id, "location", location, "bytes", len(data))
	return nil
}

// Reload replaces the in-memory project with its last persisted state: the
// saved document, or the recovery snapshot when the project was never
// saved. It is the way out of a corrupted history. A failed reload leaves
// the session untouched.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed(s.id)
	}
	location := s.g.Project().Path
	var (
		st  domain.State
		err error
	)
	if location == "" {
		st, err = s.w.rec.Load(ctx, s.id)
	} else {
		var data []byte
		if data, err = s.w.docs.Read(ctx, location); err == nil {
			st, err = codec.Decode(data)
		}
		st.Project.Path = location
	}
	if err != nil {
		return &domain.PersistenceError{Op: "reload", Location: location, Err: err}
	}
	if st.Project.ID != s.id {
		return &domain.PersistenceError{Op: "reload", Location: location,
			Err: fmt.Errorf("document belongs to project %s", st.Project.ID)}
	}
	g, err := graph.FromState(st, s.w.graphOpts...)
	if err != nil {
		return &domain.PersistenceError{Op: "reload", Location: location, Err: err}
	}
	s.install(g, location == "")
	s.snapErr = nil
	s.w.logger.Info("project reloaded", "project", s.id, "location", location)
	return nil
}
