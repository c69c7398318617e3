package core

import (
	"context"
	"eiscore/internal/graph"
	"eiscore/internal/history"
	"eiscore/pkg/domain"
)

// Series returns a copy of one series.
func (s *Session) Series(id string) (domain.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.g.Series(id)
	if !ok {
		return domain.Series{}, domain.NotFound(domain.EntitySeries, id)
	}
	return out, nil
}

// ListSeries returns every series in order.
func (s *Session) ListSeries() []domain.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.ListSeries()
}

// AddSeries appends an imported series and returns it with its assigned
// identifier and disambiguated label.
func (s *Session) AddSeries(ctx context.Context, series domain.Series) (domain.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := history.AddSeries(series)
	if err := s.record(ctx, "add_series", e); err != nil {
		return domain.Series{}, err
	}
	return e.Series(), nil
}

// DeleteSeries removes a series together with its results as one undoable
// step.
func (s *Session) DeleteSeries(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "delete_series", history.DeleteSeries(id))
}

// RenameSeries relabels a series and returns the label actually applied.
func (s *Session) RenameSeries(ctx context.Context, id, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "rename_series", history.RenameSeries(id, label)); err != nil {
		return "", err
	}
	out, _ := s.g.Series(id)
	return out.Label, nil
}

// SetSeriesPath updates the source file path of a series.
func (s *Session) SetSeriesPath(ctx context.Context, id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "set_series_path", history.SetSeriesPath(id, path))
}

// Mask returns the exclusion mask of a series.
func (s *Session) Mask(id string) (map[int]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Mask(id)
}

// SetMask replaces the exclusion mask of a series. Results computed under
// the old mask are kept and reported as stale.
func (s *Session) SetMask(ctx context.Context, id string, mask map[int]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "set_mask", history.SetMask(id, mask))
}

// Average adds the pointwise mean of several series as a new series.
func (s *Session) Average(ctx context.Context, ids []string, label string) (domain.Series, error) {
	return s.derive(ctx, "average_series", func(g *graph.Graph) (domain.Series, error) {
		return g.Average(ids, label)
	})
}

// Subtract adds a copy of a series with sub removed pointwise.
func (s *Session) Subtract(ctx context.Context, id string, sub graph.Subtrahend, label string) (domain.Series, error) {
	return s.derive(ctx, "subtract_series", func(g *graph.Graph) (domain.Series, error) {
		return g.Subtract(id, sub, label)
	})
}

// Interpolate adds a copy of a series with the listed points interpolated.
func (s *Session) Interpolate(ctx context.Context, id string, indices []int, label string) (domain.Series, error) {
	return s.derive(ctx, "interpolate_series", func(g *graph.Graph) (domain.Series, error) {
		return g.Interpolate(id, indices, label)
	})
}

func (s *Session) derive(ctx context.Context, op string, build func(*graph.Graph) (domain.Series, error)) (domain.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return domain.Series{}, err
	}
	series, err := build(s.g)
	if err != nil {
		return domain.Series{}, err
	}
	e := history.AddSeries(series)
	if err := s.record(ctx, op, e); err != nil {
		return domain.Series{}, err
	}
	return e.Series(), nil
}

// Result returns a copy of one result of any kind.
func (s *Session) Result(id string) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.g.Result(id)
	if !ok {
		return domain.Result{}, domain.NotFound(domain.EntityResult, id)
	}
	return r, nil
}

// Results returns the results of one kind for a series, oldest first.
func (s *Session) Results(seriesID string, kind domain.ResultKind) []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.ListResults(seriesID, kind)
}

// Simulations returns the simulation results, oldest first.
func (s *Session) Simulations() []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.ListSimulations()
}

// DeleteResult removes one result.
func (s *Session) DeleteResult(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, "delete_result", history.DeleteResult(id))
}
