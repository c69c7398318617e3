package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workspace collectors. It also receives snapshot outcomes
// from the recovery manager.
type Metrics struct {
	mutations        *prometheus.CounterVec
	replays          *prometheus.CounterVec
	snapshotWrites   prometheus.Counter
	snapshotFailures prometheus.Counter
	snapshotDuration prometheus.Histogram
	danglingRefs     prometheus.Counter
	engineCalls      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg uses a private
// registry so tests and embedded workspaces never touch the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eiscore_mutations_total",
			Help: "Recorded project mutations by operation",
		}, []string{"op"}),
		replays: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eiscore_history_replays_total",
			Help: "Undo and redo steps by direction and status",
		}, []string{"direction", "status"}),
		snapshotWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "eiscore_snapshot_writes_total",
			Help: "Recovery snapshots written",
		}),
		snapshotFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eiscore_snapshot_failures_total",
			Help: "Recovery snapshot writes that failed",
		}),
		snapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eiscore_snapshot_duration_seconds",
			Help:    "Time spent encoding and writing a recovery snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		danglingRefs: f.NewCounter(prometheus.CounterOpts{
			Name: "eiscore_plot_dangling_refs_total",
			Help: "Plot references omitted while resolving because their entity is gone",
		}),
		engineCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eiscore_engine_calls_total",
			Help: "Numerical engine calls by kind and status",
		}, []string{"kind", "status"}),
	}
}

// SnapshotWritten implements recovery.Recorder.
func (m *Metrics) SnapshotWritten(d time.Duration) {
	m.snapshotWrites.Inc()
	m.snapshotDuration.Observe(d.Seconds())
}

// SnapshotFailed implements recovery.Recorder.
func (m *Metrics) SnapshotFailed() { m.snapshotFailures.Inc() }

func (m *Metrics) mutation(op string) { m.mutations.WithLabelValues(op).Inc() }

func (m *Metrics) replay(direction string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.replays.WithLabelValues(direction, status).Inc()
}

func (m *Metrics) engineCall(kind, status string) { m.engineCalls.WithLabelValues(kind, status).Inc() }

func (m *Metrics) dangling(n int) {
	if n > 0 {
		m.danglingRefs.Add(float64(n))
	}
}
