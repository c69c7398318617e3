package engine

import (
	"context"
	"eiscore/pkg/domain"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func simulationRequest(maxF float64) domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Kind: domain.KindSimulation,
		Settings: domain.Settings{Simulation: &domain.SimulationSettings{
			Circuit:         "R",
			Parameters:      []domain.Parameter{{Element: "R_1", Symbol: "R", Value: 50}},
			MinFrequency:    1,
			MaxFrequency:    maxF,
			PointsPerDecade: 2,
		}},
	}
}

func TestSimulatorEvaluatesCircuit(t *testing.T) {
	resp, err := Simulator{}.Analyze(context.Background(), simulationRequest(100))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	r := resp.Result
	if r.Kind != domain.KindSimulation || r.Simulation == nil {
		t.Fatalf("unexpected result %+v", r)
	}
	if len(r.Frequencies) != 5 || r.Frequencies[0] != 100 {
		t.Fatalf("unexpected axis %v", r.Frequencies)
	}
	for i := range r.Real {
		if r.Real[i] != 50 || r.Imag[i] != 0 {
			t.Fatalf("resistor should be flat 50 ohm, got %v %v", r.Real[i], r.Imag[i])
		}
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("result invalid: %v", err)
	}
}

func TestSimulatorRejectsOtherKinds(t *testing.T) {
	_, err := Simulator{}.Analyze(context.Background(), domain.AnalysisRequest{Kind: domain.KindFit})
	var ee *domain.EngineError
	if !errors.As(err, &ee) || ee.Code != domain.EngineCodeUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
	bad := simulationRequest(100)
	bad.Settings.Simulation.Circuit = "R(("
	_, err = Simulator{}.Analyze(context.Background(), bad)
	if !errors.As(err, &ee) || ee.Code != domain.EngineCodeInvalidSetting {
		t.Fatalf("expected invalid settings, got %v", err)
	}
}

func TestRouterDelegatesNonSimulations(t *testing.T) {
	var calls int32
	ext := domain.EngineFunc(func(context.Context, domain.AnalysisRequest) (domain.AnalysisResponse, error) {
		atomic.AddInt32(&calls, 1)
		return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeNonConvergence, Message: "no"}
	})
	r := Router{External: ext}
	if _, err := r.Analyze(context.Background(), simulationRequest(10)); err != nil {
		t.Fatalf("simulation: %v", err)
	}
	_, err := r.Analyze(context.Background(), domain.AnalysisRequest{Kind: domain.KindDRT})
	if AsEngineError(err).Code != domain.EngineCodeNonConvergence || calls != 1 {
		t.Fatalf("expected external call, got %v (calls=%d)", err, calls)
	}
	if AsEngineError(context.Canceled).Code != domain.EngineCodeCancelled {
		t.Fatalf("expected cancellation code")
	}
}

func TestDispatcherBoundsParallelismAndKeepsOrder(t *testing.T) {
	var running, peak int32
	eng := domain.EngineFunc(func(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		if req.Settings.Simulation.MaxFrequency == 30 {
			return domain.AnalysisResponse{}, errors.New("boom")
		}
		return Simulator{}.Analyze(ctx, req)
	})
	var reqs []domain.AnalysisRequest
	for i := 1; i <= 8; i++ {
		reqs = append(reqs, simulationRequest(float64(i*10)))
	}
	out := NewDispatcher(eng, 3, nil).Run(context.Background(), reqs)
	if len(out) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(out))
	}
	for i, o := range out {
		if o.Request.Settings.Simulation.MaxFrequency != float64((i+1)*10) {
			t.Fatalf("outcome %d out of order", i)
		}
		if (i == 2) != (o.Err != nil) {
			t.Fatalf("outcome %d: unexpected error state %v", i, o.Err)
		}
	}
	if peak > 3 {
		t.Fatalf("parallelism exceeded limit: %d", peak)
	}
}
