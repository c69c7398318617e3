package core

import (
	"context"
	"eiscore/internal/engine"
	"eiscore/internal/history"
	"eiscore/pkg/domain"
)

// Job is one analysis of a batch. SeriesID is empty for simulations.
type Job struct {
	SeriesID string
	Settings domain.Settings
}

// JobResult is the outcome of one Job: the recorded result or why none was
// recorded.
type JobResult struct {
	Job    Job
	Result domain.Result
	Err    error
}

// Analyze runs one analysis and records its result. The engine runs outside
// the session lock; the result is recorded under it. Engine failures come
// back as *domain.EngineError and record nothing.
func (s *Session) Analyze(ctx context.Context, seriesID string, settings domain.Settings) (domain.Result, error) {
	req, err := s.request(seriesID, settings, false)
	if err != nil {
		return domain.Result{}, err
	}
	resp, err := s.w.engine.Analyze(ctx, req)
	if err != nil {
		return domain.Result{}, s.engineFailed(req, err)
	}
	s.w.metrics.engineCall(string(req.Kind), "ok")
	return s.accept(ctx, req, resp.Result)
}

// Simulate evaluates a circuit over a log-spaced frequency axis and records
// the simulation result.
func (s *Session) Simulate(ctx context.Context, settings domain.SimulationSettings) (domain.Result, error) {
	return s.Analyze(ctx, "", domain.Settings{Simulation: &settings})
}

// AnalyzeBatch runs independent analyses in parallel through the engine
// dispatcher and records every successful result in job order. One failed
// job does not affect the others.
func (s *Session) AnalyzeBatch(ctx context.Context, jobs []Job) []JobResult {
	out := make([]JobResult, len(jobs))
	reqs := make([]domain.AnalysisRequest, 0, len(jobs))
	index := make([]int, 0, len(jobs))
	for i, job := range jobs {
		out[i].Job = job
		req, err := s.request(job.SeriesID, job.Settings, false)
		if err != nil {
			out[i].Err = err
			continue
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}
	for k, o := range s.w.dispatch.Run(ctx, reqs) {
		i := index[k]
		if o.Err != nil {
			out[i].Err = s.engineFailed(o.Request, o.Err)
			continue
		}
		s.w.metrics.engineCall(string(o.Request.Kind), "ok")
		out[i].Result, out[i].Err = s.accept(ctx, o.Request, o.Response.Result)
	}
	return out
}

// Explore runs the exploratory variant of an analysis and returns its
// ordered candidates. Nothing is recorded until one is accepted.
func (s *Session) Explore(ctx context.Context, seriesID string, settings domain.Settings) ([]domain.Result, error) {
	req, err := s.request(seriesID, settings, true)
	if err != nil {
		return nil, err
	}
	resp, err := s.w.engine.Analyze(ctx, req)
	if err != nil {
		return nil, s.engineFailed(req, err)
	}
	s.w.metrics.engineCall(string(req.Kind), "ok")
	out := make([]domain.Result, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		out = append(out, stamp(req, c))
	}
	return out, nil
}

// AcceptCandidate records one candidate returned by Explore.
func (s *Session) AcceptCandidate(ctx context.Context, candidate domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate.ID = ""
	e := history.AddResult(candidate)
	if err := s.record(ctx, "accept_"+string(candidate.Kind), e); err != nil {
		return domain.Result{}, err
	}
	return e.Result(), nil
}

// request builds an engine request from the current series state.
func (s *Session) request(seriesID string, settings domain.Settings, exploratory bool) (domain.AnalysisRequest, error) {
	kind, err := settings.Kind()
	if err != nil {
		return domain.AnalysisRequest{}, domain.Invalid(domain.EntityResult, "", err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return domain.AnalysisRequest{}, err
	}
	req := domain.AnalysisRequest{
		Kind:        kind,
		Settings:    settings,
		Workers:     s.w.cc.Config().Engine.Workers,
		Exploratory: exploratory,
	}
	if !kind.SeriesBound() {
		if seriesID != "" {
			return domain.AnalysisRequest{}, domain.Invalid(domain.EntityResult, "", "simulations do not belong to a series")
		}
		return req, nil
	}
	series, ok := s.g.Series(seriesID)
	if !ok {
		return domain.AnalysisRequest{}, domain.NotFound(domain.EntitySeries, seriesID)
	}
	req.Series = series.Masked()
	req.Mask = domain.CloneMask(series.Mask)
	if req.Series.Len() == 0 {
		return domain.AnalysisRequest{}, domain.Invalid(domain.EntitySeries, seriesID, "every point is masked")
	}
	return req, nil
}

// accept records an engine result under the session lock.
func (s *Session) accept(ctx context.Context, req domain.AnalysisRequest, r domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := history.AddResult(stamp(req, r))
	if err := s.record(ctx, "analyze_"+string(req.Kind), e); err != nil {
		return domain.Result{}, err
	}
	return e.Result(), nil
}

func (s *Session) engineFailed(req domain.AnalysisRequest, err error) error {
	ee := engine.AsEngineError(err)
	s.w.metrics.engineCall(string(req.Kind), ee.Code)
	s.w.logger.Warn("analysis failed", "project", s.id, "series", req.Series.ID, "kind", req.Kind, "err", ee)
	return ee
}

// stamp binds an engine result to the request it answers. The identifier is
// assigned by the graph.
func stamp(req domain.AnalysisRequest, r domain.Result) domain.Result {
	r.ID = ""
	r.Kind = req.Kind
	r.SeriesID = req.Series.ID
	r.Mask = domain.CloneMask(req.Mask)
	return r
}
