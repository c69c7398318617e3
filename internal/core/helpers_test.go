package core

import (
	"context"
	"eiscore/internal/blob"
	"eiscore/internal/circuit"
	"eiscore/internal/codec"
	"eiscore/internal/config"
	"eiscore/pkg/domain"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type env struct {
	cfg    config.Config
	blobs  *blob.MemoryStore
	calls  *atomic.Int32
	engine domain.Engine
}

func newEnv(t *testing.T, tweak func(*config.Config)) *env {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Engine.Workers = 2
	if tweak != nil {
		tweak(&cfg)
	}
	e := &env{cfg: cfg, blobs: blob.NewMemory(), calls: new(atomic.Int32)}
	e.engine = fakeEngine(e.calls)
	return e
}

// workspace opens a fresh workspace over the env's recovery area and state
// directory, the way a new process would.
func (e *env) workspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	cc, err := config.Open(e.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	base := []Option{WithBlobStore(e.blobs), WithEngine(e.engine)}
	w, err := NewWorkspace(context.Background(), cc, append(base, opts...)...)
	require.NoError(t, err)
	return w
}

// fakeEngine answers validity tests with a single-resistor model. A negative
// NumRC reports non-convergence.
func fakeEngine(calls *atomic.Int32) domain.EngineFunc {
	return func(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
		calls.Add(1)
		if req.Kind != domain.KindTest {
			return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeUnsupported, Message: "tests only"}
		}
		if req.Settings.Test.NumRC < 0 {
			return domain.AnalysisResponse{}, &domain.EngineError{Code: domain.EngineCodeNonConvergence, Message: "did not converge"}
		}
		candidate := func(r float64) domain.Result {
			params := []domain.Parameter{{Element: "R_1", Symbol: "R", Value: r, StdErr: math.NaN()}}
			z, _ := circuit.Evaluate("R", params, req.Series.Frequencies)
			re, im := circuit.Split(z)
			return domain.Result{
				Frequencies: append([]float64(nil), req.Series.Frequencies...),
				Real:        re,
				Imag:        im,
				Test: &domain.TestOutput{
					Settings:   *req.Settings.Test,
					Circuit:    "R",
					Parameters: params,
					NumRC:      1,
					Mu:         0.5,
				},
			}
		}
		if req.Exploratory {
			return domain.AnalysisResponse{Candidates: []domain.Result{candidate(10), candidate(20)}}, nil
		}
		return domain.AnalysisResponse{Result: candidate(10)}, nil
	}
}

func tenPoints(label string) domain.Series {
	s := domain.Series{Label: label, Path: "/data/" + label + ".idf"}
	for i := 0; i < 10; i++ {
		s.Frequencies = append(s.Frequencies, 1e4/float64(i+1))
		s.Real = append(s.Real, float64(10+i))
		s.Imag = append(s.Imag, -float64(i))
	}
	return s
}

func testSettings(numRC int) domain.Settings {
	return domain.Settings{Test: &domain.TestSettings{Test: "complex", Mode: "auto", NumRC: numRC, MuCriterion: 0.85, MaxIterations: 10}}
}

// requireSameState compares project states with NaN scalars treated as
// equal; fitted parameters carry NaN standard errors.
func requireSameState(t *testing.T, want, got domain.State) {
	t.Helper()
	require.NoError(t, codec.EquivalentStates(want, got))
}
