// Package recovery writes periodic crash-recovery snapshots of open projects
// into a blob store and finds them again after an unclean exit.
package recovery

import (
	"bytes"
	"context"
	"eiscore/internal/blob"
	"eiscore/internal/codec"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is the number of counted mutations between snapshots.
const DefaultInterval = 5

const (
	keyPrefix      = "recovery/"
	keySuffix      = ".json"
	metaLabel      = "label"
	metaLocation   = "location"
	metaSnapshotAt = "snapshot_at"
)

// Key returns the blob key of a project's snapshot.
func Key(projectID string) string { return keyPrefix + projectID + keySuffix }

// Snapshotter exposes the live state of one open project. Snapshot is called
// by the goroutine that holds the project's lock.
type Snapshotter interface {
	ProjectID() string
	Snapshot() domain.State
}

// Recorder receives snapshot outcomes.
type Recorder interface {
	SnapshotWritten(d time.Duration)
	SnapshotFailed()
}

type nopRecorder struct{}

func (nopRecorder) SnapshotWritten(time.Duration) {}
func (nopRecorder) SnapshotFailed()               {}

// Reason explains why a snapshot is offered for recovery.
type Reason string

// Recovery reasons.
const (
	ReasonUnsaved Reason = "unsaved" // project was never saved
	ReasonMissing Reason = "missing" // saved document no longer exists
	ReasonNewer   Reason = "newer"   // snapshot is newer than the saved document
)

// Candidate is a snapshot left behind by a session that did not close cleanly.
type Candidate struct {
	ProjectID  string
	Label      string
	Location   string
	SnapshotAt time.Time
	Reason     Reason
}

// Manager owns the per-project mutation counters and the recovery area.
type Manager struct {
	store    blob.Store
	docs     domain.DocumentStore
	interval int
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	counters map[string]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets the number of mutations between snapshots.
func WithInterval(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.interval = n
		}
	}
}

// WithLogger sets the logger used for snapshot failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a Manager writing into store. docs is consulted by Scan to
// decide whether a snapshot is newer than the saved document.
func New(store blob.Store, docs domain.DocumentStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		docs:     docs,
		interval: DefaultInterval,
		logger:   slog.New(slog.DiscardHandler),
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
		counters: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the configured snapshot interval.
func (m *Manager) Interval() int { return m.interval }

// Pending returns the number of counted mutations since the last snapshot.
func (m *Manager) Pending(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[projectID]
}

// Observe counts one mutation of the project. When the counter reaches the
// interval a session-mode snapshot is written and the counter resets. A
// failed write keeps the counter so the next mutation retries; the error is
// returned for reporting and the caller keeps editing.
func (m *Manager) Observe(ctx context.Context, s Snapshotter) (bool, error) {
	id := s.ProjectID()
	m.mu.Lock()
	m.counters[id]++
	due := m.counters[id] >= m.interval
	m.mu.Unlock()
	if !due {
		return false, nil
	}
	if err := m.write(ctx, s.Snapshot()); err != nil {
		return false, err
	}
	m.reset(id)
	return true, nil
}

// Flush writes a snapshot unconditionally.
func (m *Manager) Flush(ctx context.Context, s Snapshotter) error {
	if err := m.write(ctx, s.Snapshot()); err != nil {
		return err
	}
	m.reset(s.ProjectID())
	return nil
}

// Discard deletes the project's snapshot after a clean save or close.
func (m *Manager) Discard(ctx context.Context, projectID string) error {
	m.mu.Lock()
	delete(m.counters, projectID)
	m.mu.Unlock()
	if _, err := m.store.Delete(ctx, Key(projectID)); err != nil {
		m.logger.Warn("discard snapshot failed", "project", projectID, "err", err)
		return &domain.PersistenceError{Op: "discard snapshot", Location: Key(projectID), Err: err}
	}
	return nil
}

func (m *Manager) reset(projectID string) {
	m.mu.Lock()
	m.counters[projectID] = 0
	m.mu.Unlock()
}

func (m *Manager) write(ctx context.Context, st domain.State) error {
	start := time.Now()
	key := Key(st.Project.ID)
	fail := func(err error) error {
		m.recorder.SnapshotFailed()
		m.logger.Error("snapshot failed", "project", st.Project.ID, "key", key, "err", err)
		return &domain.PersistenceError{Op: "snapshot", Location: key, Err: err}
	}
	if st.Project.ID == "" {
		return fail(errors.New("project has no identifier"))
	}
	data, err := codec.Encode(st, codec.ModeSession)
	if err != nil {
		return fail(err)
	}
	meta := map[string]string{
		metaLabel:      url.QueryEscape(st.Project.Label),
		metaLocation:   url.QueryEscape(st.Project.Path),
		metaSnapshotAt: m.now().Format(time.RFC3339Nano),
	}
	if _, err := m.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return fail(err)
	}
	m.recorder.SnapshotWritten(time.Since(start))
	m.logger.Debug("snapshot written", "project", st.Project.ID, "bytes", len(data))
	return nil
}

// Scan lists snapshots that should be offered for recovery: the project was
// never saved, its document is gone, or the document is older than the
// snapshot. Candidates are ordered newest first.
func (m *Manager) Scan(ctx context.Context) ([]Candidate, error) {
	infos, err := m.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "scan snapshots", Location: keyPrefix, Err: err}
	}
	var out []Candidate
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, keySuffix) {
			continue
		}
		head, err := m.store.Head(ctx, info.Key)
		if err != nil {
			m.logger.Warn("skip unreadable snapshot", "key", info.Key, "err", err)
			continue
		}
		c := candidateFrom(head)
		if c.Location == "" {
			c.Reason = ReasonUnsaved
		} else {
			doc, exists, err := m.docs.Stat(ctx, c.Location)
			switch {
			case err != nil:
				m.logger.Warn("stat document failed", "project", c.ProjectID, "location", c.Location, "err", err)
				continue
			case !exists:
				c.Reason = ReasonMissing
			case doc.ModTime.Before(c.SnapshotAt):
				c.Reason = ReasonNewer
			default:
				continue
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotAt.After(out[j].SnapshotAt) })
	return out, nil
}

func candidateFrom(info blob.Info) Candidate {
	c := Candidate{
		ProjectID:  strings.TrimSuffix(strings.TrimPrefix(info.Key, keyPrefix), keySuffix),
		SnapshotAt: info.LastModified,
	}
	if v, err := url.QueryUnescape(info.Metadata[metaLabel]); err == nil {
		c.Label = v
	}
	if v, err := url.QueryUnescape(info.Metadata[metaLocation]); err == nil {
		c.Location = v
	}
	if ts, err := time.Parse(time.RFC3339Nano, info.Metadata[metaSnapshotAt]); err == nil {
		c.SnapshotAt = ts
	}
	return c
}

// Load decodes the snapshot of projectID.
func (m *Manager) Load(ctx context.Context, projectID string) (domain.State, error) {
	key := Key(projectID)
	_, rc, err := m.store.Get(ctx, key)
	if err != nil {
		return domain.State{}, &domain.PersistenceError{Op: "load snapshot", Location: key, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.State{}, &domain.PersistenceError{Op: "load snapshot", Location: key, Err: err}
	}
	st, err := codec.Decode(data)
	if err != nil {
		return domain.State{}, &domain.PersistenceError{Op: "load snapshot", Location: key, Err: err}
	}
	if st.Project.ID != projectID {
		return domain.State{}, &domain.PersistenceError{Op: "load snapshot", Location: key,
			Err: fmt.Errorf("snapshot belongs to project %s", st.Project.ID)}
	}
	return st, nil
}
