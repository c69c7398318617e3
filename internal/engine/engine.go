// Package engine hosts the built-in simulation engine and the dispatcher that
// fans independent analysis requests out to an engine in parallel.
package engine

import (
	"context"
	"eiscore/internal/circuit"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
)

// Simulator evaluates circuit simulations in-process. Every other kind is
// reported as unsupported.
type Simulator struct{}

// Analyze implements domain.Engine.
func (Simulator) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeCancelled, Message: err.Error()}
	}
	if req.Kind != domain.KindSimulation || req.Settings.Simulation == nil {
		return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeUnsupported, Message: fmt.Sprintf("built-in engine cannot run %q", req.Kind)}
	}
	set := *req.Settings.Simulation
	set.Parameters = append([]domain.Parameter(nil), set.Parameters...)
	freqs, err := circuit.LogSpace(set.MinFrequency, set.MaxFrequency, set.PointsPerDecade)
	if err != nil {
		return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeInvalidSetting, Message: err.Error()}
	}
	z, err := circuit.Evaluate(set.Circuit, set.Parameters, freqs)
	if err != nil {
		return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeInvalidSetting, Message: err.Error()}
	}
	re, im := circuit.Split(z)
	return domain.AnalysisResponse{Result: domain.Result{
		Kind:        domain.KindSimulation,
		Frequencies: freqs,
		Real:        re,
		Imag:        im,
		Simulation:  &domain.SimulationOutput{Settings: set},
	}}, nil
}

// Router sends simulations to the built-in Simulator and every other kind to
// External. A nil External makes those kinds unsupported.
type Router struct {
	External domain.Engine
}

// Analyze implements domain.Engine.
func (r Router) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	if req.Kind == domain.KindSimulation || r.External == nil {
		return Simulator{}.Analyze(ctx, req)
	}
	return r.External.Analyze(ctx, req)
}

// AsEngineError converts any engine failure into an *EngineError so callers
// can rely on a code.
func AsEngineError(err error) *domain.EngineError {
	if err == nil {
		return nil
	}
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.EngineError{Code: domain.EngineCodeCancelled, Message: err.Error()}
	}
	return &domain.EngineError{Code: "engine_failure", Message: err.Error()}
}
