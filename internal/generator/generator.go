// ============================================================================
// Conflict Engine - Solution Generator Collaborators
// ============================================================================
//
// Package: internal/generator
// File: generator.go
// Purpose: Abstraction over the external service that proposes candidate
//          solutions for detected conflicts
//
// Implementations:
//   - Func:          adapts a plain function (tests, embedding)
//   - FileGenerator: YAML catalog for offline runs
//   - GRPCGenerator: remote SolutionGenerator service
//
// The engine treats every implementation as untrusted: output is validated
// and any error or timeout ends the run in generation_failed.
//
// ============================================================================

package generator

import (
	"context"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// Generator proposes candidate solutions for conflicts.
//
// Parameters:
//   - ctx: carries the caller's generation timeout
//   - conflicts: the top conflicts of a run in detector order
//
// Returns:
//   - map of conflict id to zero or more solutions
//   - error: any failure; the caller proceeds with no solutions
type Generator interface {
	Generate(ctx context.Context, conflicts []types.Conflict) (map[string][]types.Solution, error)
}

// Func adapts a function to Generator
type Func func(ctx context.Context, conflicts []types.Conflict) (map[string][]types.Solution, error)

// Generate calls f
func (f Func) Generate(ctx context.Context, conflicts []types.Conflict) (map[string][]types.Solution, error) {
	return f(ctx, conflicts)
}

type executionIDKey struct{}

// WithExecutionID tags ctx with the execution id a generation call belongs to
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, executionID)
}

// ExecutionID returns the execution id carried by ctx, if any
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}
