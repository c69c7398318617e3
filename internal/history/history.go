// Package history implements the per-project undo/redo log.
//
// Mutations are described by Entry values built before anything is applied.
// Entries hold copies and identifiers, never live graph records, so an entry
// stays valid regardless of what other entries do in between.
package history

import (
	"eiscore/internal/graph"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
)

// Entry is one reversible mutation of an entity graph.
type Entry interface {
	Description() string
	Apply(g *graph.Graph) error
	Revert(g *graph.Graph) error
}

// ReplayError reports an entry whose inverse (or re-application) failed. The
// graph is in an unknown state and the project must be reloaded.
type ReplayError struct {
	Op    string
	Entry string
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("%s %q: %v: %v", e.Op, e.Entry, domain.ErrCorrupted, e.Err)
}

// Unwrap exposes both the corruption sentinel and the underlying failure.
func (e *ReplayError) Unwrap() []error { return []error{domain.ErrCorrupted, e.Err} }

// History is a cursor over an ordered list of applied entries. Entries before
// the cursor are undoable; entries at or after it are redoable.
type History struct {
	entries []Entry
	cursor  int
	limit   int
	failed  error
}

// New returns an empty history. A positive limit caps the number of retained
// entries; the oldest are dropped first.
func New(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Record applies e and appends it after the cursor, discarding the redoable
// tail. Nothing is recorded when Apply fails.
func (h *History) Record(g *graph.Graph, e Entry) error {
	if h.failed != nil {
		return h.failed
	}
	if err := e.Apply(g); err != nil {
		if errors.Is(err, domain.ErrCorrupted) {
			h.failed = err
		}
		return err
	}
	h.entries = append(h.entries[:h.cursor], e)
	h.cursor++
	if h.limit > 0 && len(h.entries) > h.limit {
		drop := len(h.entries) - h.limit
		h.entries = append([]Entry(nil), h.entries[drop:]...)
		h.cursor -= drop
	}
	return nil
}

// Undo reverts the entry before the cursor. It returns nil when there is
// nothing to undo.
func (h *History) Undo(g *graph.Graph) (Entry, error) {
	if h.failed != nil {
		return nil, h.failed
	}
	if h.cursor == 0 {
		return nil, nil
	}
	e := h.entries[h.cursor-1]
	if err := e.Revert(g); err != nil {
		h.failed = &ReplayError{Op: "undo", Entry: e.Description(), Err: err}
		return nil, h.failed
	}
	h.cursor--
	return e, nil
}

// Redo re-applies the entry at the cursor. It returns nil when there is
// nothing to redo.
func (h *History) Redo(g *graph.Graph) (Entry, error) {
	if h.failed != nil {
		return nil, h.failed
	}
	if h.cursor == len(h.entries) {
		return nil, nil
	}
	e := h.entries[h.cursor]
	if err := e.Apply(g); err != nil {
		h.failed = &ReplayError{Op: "redo", Entry: e.Description(), Err: err}
		return nil, h.failed
	}
	h.cursor++
	return e, nil
}

// CanUndo reports whether Undo would revert an entry.
func (h *History) CanUndo() bool { return h.failed == nil && h.cursor > 0 }

// CanRedo reports whether Redo would re-apply an entry.
func (h *History) CanRedo() bool { return h.failed == nil && h.cursor < len(h.entries) }

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.entries) }

// Cursor returns the number of applied entries.
func (h *History) Cursor() int { return h.cursor }

// Err returns the replay failure that poisoned the history, if any.
func (h *History) Err() error { return h.failed }

// Descriptions lists the entry descriptions oldest first.
func (h *History) Descriptions() []string {
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Description()
	}
	return out
}

// Clear drops every entry and any replay failure. It is used after the graph
// has been replaced wholesale (load, recovery).
func (h *History) Clear() {
	h.entries = nil
	h.cursor = 0
	h.failed = nil
}
