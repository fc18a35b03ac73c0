package orchestrator

// ============================================================================
// Stages
// Responsibility: One function per state; each returns an updated copy of
// the RunContext it receives and never mutates it in place
// ============================================================================

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ChuLiYu/conflict-engine/internal/consolidator"
	"github.com/ChuLiYu/conflict-engine/internal/detector"
	"github.com/ChuLiYu/conflict-engine/internal/generator"
	"github.com/ChuLiYu/conflict-engine/internal/learner"
	"github.com/ChuLiYu/conflict-engine/internal/ranker"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// weightSumTolerance is the drift from 1.0 tolerated before a warning
const weightSumTolerance = 1e-6

type stageFunc func(ctx context.Context, rc types.RunContext) types.RunContext

// pipeline binds the stages of one operation to the engine.
// pending is the feedback record consumed by the feedback stage.
type pipeline struct {
	e        *Engine
	pending  *types.Feedback
	recorded types.Feedback
}

func (p *pipeline) stage(s State) stageFunc {
	switch s {
	case StateConsolidate:
		return p.consolidate
	case StateDetect:
		return p.detect
	case StateGenerate:
		return p.generate
	case StateRank:
		return p.rank
	case StateFeedback:
		return p.recordFeedback
	case StateAnalyzePatterns:
		return p.analyzePatterns
	case StateAdjustWeights:
		return p.adjustWeights
	}
	return nil
}

func (p *pipeline) consolidate(_ context.Context, rc types.RunContext) types.RunContext {
	result := consolidator.Consolidate(rc.Resources, rc.Assignments)
	rc.ConsolidatedResources = result.Resources
	log.Info("resources consolidated", "execution_id", rc.ExecutionID,
		"records", len(rc.Resources), "people", len(result.Resources),
		"assignments", result.TotalAssignments(), "skipped", len(rc.Assignments)-result.TotalAssignments())
	return rc.WithErrors(result.Warnings...).WithStage(types.StageConsolidated, p.e.now())
}

func (p *pipeline) detect(_ context.Context, rc types.RunContext) types.RunContext {
	result, err := detector.Detect(rc.ConsolidatedResources)
	if err != nil {
		return failed(rc, fmt.Sprintf("detection: %v", err), p.e.now())
	}

	rc.Conflicts = result.Conflicts
	rc.TotalConflicts = result.Total
	rc.CriticalConflicts = result.Critical
	if len(result.Conflicts) == 0 {
		rc.Solutions = nil
		rc.TotalSolutions = 0
		rc.RankedSolutions = nil
	}

	counts := make(map[string]int, len(result.BySeverity))
	for severity, n := range result.BySeverity {
		counts[string(severity)] = n
	}
	p.e.metrics.RecordConflicts(counts)

	return withWarnings(rc, result.Warnings...).WithStage(types.StageDetected, p.e.now())
}

type generation struct {
	solutions map[string][]types.Solution
	err       error
}

/*
generate hands the top conflicts to the external generator.

The call runs on its own goroutine under GenerationTimeout so a generator
that ignores its context cannot hold the run. Errors, timeouts, panics and
malformed responses all end the run in generation_failed with no solutions.
*/
func (p *pipeline) generate(ctx context.Context, rc types.RunContext) types.RunContext {
	e := p.e
	if e.generator == nil {
		return p.generationFailed(rc, "solution generation: no generator configured")
	}

	top := detector.Top(rc.Conflicts, e.cfg.TopConflicts)
	gctx, cancel := context.WithTimeout(generator.WithExecutionID(ctx, rc.ExecutionID), e.cfg.GenerationTimeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		solutions, err := e.generator.Generate(gctx, top)
		done <- generation{solutions: solutions, err: err}
	}()

	var result generation
	select {
	case result = <-done:
	case <-gctx.Done():
		result.err = gctx.Err()
	}
	if result.err != nil {
		return p.generationFailed(rc, fmt.Sprintf("solution generation: %v", result.err))
	}

	solutions, warnings, err := collectSolutions(top, result.solutions)
	if err != nil {
		return p.generationFailed(rc, fmt.Sprintf("malformed generator response: %v", err))
	}

	rc.Solutions = solutions
	rc.TotalSolutions = len(solutions)
	return withWarnings(rc, warnings...).WithStage(types.StageGenerated, e.now())
}

func (p *pipeline) generationFailed(rc types.RunContext, msg string) types.RunContext {
	log.Warn("generation failed", "execution_id", rc.ExecutionID, "error", msg)
	p.e.metrics.RecordGenerationFailure()

	rc.Solutions = nil
	rc.TotalSolutions = 0
	rc.RankedSolutions = nil
	return rc.WithErrors(msg).WithStage(types.StageGenerationFailed, p.e.now())
}

// collectSolutions flattens a generator response in conflict order.
//
// Solutions without an id are numbered "<conflict_id>#<n>". Entries keyed by
// a conflict that was not requested are dropped with a warning. An invalid
// solution, a conflict id mismatch or a duplicate id rejects the response.
func collectSolutions(conflicts []types.Conflict, raw map[string][]types.Solution) ([]types.Solution, []string, error) {
	requested := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		requested[c.ID] = struct{}{}
	}

	var warnings []string
	unknown := make([]string, 0)
	for id := range raw {
		if _, ok := requested[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		warnings = append(warnings, fmt.Sprintf("dropped %d solution(s) for unknown conflict %s", len(raw[id]), id))
	}

	out := make([]types.Solution, 0)
	seen := make(map[string]struct{})
	for _, c := range conflicts {
		for n, s := range raw[c.ID] {
			if s.ConflictID == "" {
				s.ConflictID = c.ID
			}
			if s.ConflictID != c.ID {
				return nil, nil, fmt.Errorf("solution for %s names conflict %s", c.ID, s.ConflictID)
			}
			if s.ID == "" {
				s.ID = fmt.Sprintf("%s#%d", c.ID, n+1)
			}
			if err := s.Validate(); err != nil {
				return nil, nil, fmt.Errorf("solution %s: %w", s.ID, err)
			}
			if _, dup := seen[s.ID]; dup {
				return nil, nil, fmt.Errorf("duplicate solution id %s", s.ID)
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	return out, warnings, nil
}

func (p *pipeline) rank(_ context.Context, rc types.RunContext) types.RunContext {
	ranked, err := ranker.Rank(rc.Solutions, rc.Weights)
	if err != nil {
		return failed(rc, fmt.Sprintf("ranking: %v", err), p.e.now())
	}

	rc.RankedSolutions = ranked
	p.e.metrics.RecordRanked(len(ranked))
	return withWarnings(rc, driftWarnings(rc.Weights)...).WithStage(types.StageRanked, p.e.now())
}

// recordFeedback scores the pending feedback, enriches it with the ranked
// solution's components and strategy, and appends it to the history.
// A sink failure is a warning; the record still joins the history.
func (p *pipeline) recordFeedback(ctx context.Context, rc types.RunContext) types.RunContext {
	if p.pending == nil {
		return failed(rc, "feedback stage entered without feedback", p.e.now())
	}

	fb := *p.pending
	fb.ExecutionID = rc.ExecutionID
	fb.EffectivenessScore = learner.Effectiveness(fb.Accepted, fb.ManagerRating, fb.Outcome)
	if ranked, ok := rc.FindRanked(fb.SolutionID); ok {
		components := ranked.Components
		fb.Components = &components
		fb.Strategy = ranked.Strategy
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = p.e.now()
	}

	if p.e.feedback != nil {
		if err := p.e.feedback.RecordFeedback(ctx, fb); err != nil {
			log.Warn("feedback sink failed", "execution_id", rc.ExecutionID, "error", err)
			rc = rc.WithErrors(fmt.Sprintf("feedback sink: %v", err))
		}
	}
	p.e.metrics.RecordFeedback(string(fb.Outcome))
	p.recorded = fb

	return rc.WithFeedback(fb).WithStage(types.StageFeedbackRecorded, p.e.now())
}

func (p *pipeline) analyzePatterns(_ context.Context, rc types.RunContext) types.RunContext {
	rc.Patterns = learner.AnalyzePatterns(rc.FeedbackHistory)
	return rc.WithStage(types.StagePatternsAnalyzed, p.e.now())
}

// adjustWeights applies the adjuster. Adjusted weights that fail validation
// are discarded with a warning and never trigger a re-analysis.
func (p *pipeline) adjustWeights(_ context.Context, rc types.RunContext) types.RunContext {
	adjusted, trigger := p.e.adjuster.Adjust(rc.FeedbackHistory, rc.Weights)
	if trigger {
		if err := adjusted.Validate(); err != nil {
			rc = rc.WithErrors(fmt.Sprintf("adjusted weights rejected: %v", err))
			trigger = false
		} else {
			rc.Weights = adjusted
			rc = withWarnings(rc, driftWarnings(adjusted)...)
		}
	}

	rc.TriggerPatternAnalysis = trigger
	rc.ShouldContinue = trigger && rc.Iterations < MaxIterations
	return rc.WithStage(types.StageWeightsAdjusted, p.e.now())
}

// ============================================================================
// Helpers
// ============================================================================

func failed(rc types.RunContext, msg string, now time.Time) types.RunContext {
	return rc.WithErrors(msg).WithStage(types.StageFailed, now)
}

// withWarnings appends the messages rc does not already carry.
// Re-detection after a loop-back reports the same data-quality warnings.
func withWarnings(rc types.RunContext, msgs ...string) types.RunContext {
	if len(msgs) == 0 {
		return rc
	}
	known := make(map[string]struct{}, len(rc.Errors))
	for _, m := range rc.Errors {
		known[m] = struct{}{}
	}
	fresh := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := known[m]; ok {
			continue
		}
		known[m] = struct{}{}
		fresh = append(fresh, m)
	}
	return rc.WithErrors(fresh...)
}

func driftWarnings(w types.Weights) []string {
	if w.SumDrift() <= weightSumTolerance {
		return nil
	}
	return []string{fmt.Sprintf("weights sum to %.4f; rank scores may fall outside [0,1]", w.Sum())}
}
