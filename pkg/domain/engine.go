package domain

import "context"

// AnalysisRequest is one call into the numerical engine. Series is the masked
// copy of the source series (excluded points removed); Mask is the snapshot
// that will be stored on the produced result.
type AnalysisRequest struct {
	Kind        ResultKind
	Series      Series
	Mask        map[int]bool
	Settings    Settings
	Workers     int
	Exploratory bool
}

// AnalysisResponse carries the produced result. Exploratory calls return an
// ordered candidate list instead and leave Result zero.
type AnalysisResponse struct {
	Result     Result
	Candidates []Result
}

// Engine is the boundary to the external numerical library. Calls for
// independent requests may run in parallel; each call is atomic. Failures
// are reported as *EngineError.
type Engine interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error)

// Analyze implements Engine.
func (f EngineFunc) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error) {
	return f(ctx, req)
}
