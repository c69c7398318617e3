package engine

import (
	"context"
	"eiscore/pkg/domain"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome pairs a request with what the engine returned for it.
type Outcome struct {
	Request  domain.AnalysisRequest
	Response domain.AnalysisResponse
	Err      error
	Elapsed  time.Duration
}

// Dispatcher runs independent requests against one engine with bounded
// parallelism. Workers compute immutable results; the caller records them.
type Dispatcher struct {
	engine  domain.Engine
	workers int
	logger  *slog.Logger
}

// NewDispatcher returns a dispatcher running at most workers calls at once.
// workers < 1 means one.
func NewDispatcher(e domain.Engine, workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{engine: e, workers: workers, logger: logger}
}

// Workers returns the parallelism bound.
func (d *Dispatcher) Workers() int { return d.workers }

// Run analyzes every request and returns outcomes in request order. A failed
// request does not stop the others; its error is kept on its outcome.
func (d *Dispatcher) Run(ctx context.Context, reqs []domain.AnalysisRequest) []Outcome {
	out := make([]Outcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, req := range reqs {
		out[i].Request = req
		g.Go(func() error {
			start := time.Now()
			resp, err := d.engine.Analyze(ctx, req)
			out[i].Response, out[i].Err, out[i].Elapsed = resp, err, time.Since(start)
			if err != nil {
				d.logger.Warn("analysis failed", "kind", req.Kind, "series", req.Series.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
