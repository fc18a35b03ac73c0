package worker

import (
	"context"
	"time"

	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// Analyzer runs one analysis; *orchestrator.Engine satisfies it
type Analyzer interface {
	Analyze(ctx context.Context, req orchestrator.AnalysisRequest) (types.RunContext, error)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, req orchestrator.AnalysisRequest) (types.RunContext, error)

// Analyze implements Analyzer
func (f AnalyzerFunc) Analyze(ctx context.Context, req orchestrator.AnalysisRequest) (types.RunContext, error) {
	return f(ctx, req)
}

// Task is one analysis to run on the pool
type Task struct {
	Request orchestrator.AnalysisRequest // ExecutionID must be unique within a batch
	Timeout time.Duration                // zero means no per-task deadline
}

// Result is the outcome of one Task
type Result struct {
	ExecutionID string
	Context     types.RunContext // last checkpointed context, zero if the run never started
	Success     bool
	Error       error
	Duration    time.Duration
}
