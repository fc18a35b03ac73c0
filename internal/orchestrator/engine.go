// ============================================================================
// Conflict Engine - Orchestrator
// ============================================================================
//
// Package: internal/orchestrator
// File: engine.go
// Purpose: Drive runs through the state machine and own their lifecycle
//
// Entry points:
//   1. Analyze        - consolidate → detect → generate → rank, then checkpoint
//   2. SubmitFeedback - resume a checkpoint at feedback → analyze_patterns →
//                       adjust_weights (→ detect … rank), then checkpoint again
//   3. Status         - registry view, falling back to the checkpoint store
//   4. Recover        - rebuild the registry from the checkpoint store at startup
//
// Run lifecycle:
//   registry.Begin ──▶ drive ──▶ Checkpointer.Save ──▶ registry.Checkpoint
//                                                 └──▶ registry.Fail (failed runs)
//
// Concurrency:
//   - one operation per execution id at a time (registry.Begin returns ErrRunBusy)
//   - stages of one run execute strictly in sequence on the caller's goroutine
//   - every run owns its RunContext; nothing is shared across execution ids
//
// Failure model:
//   - data-quality problems are warnings in RunContext.Errors
//   - generator errors, timeouts and malformed responses end in generation_failed
//   - invariant violations and stage panics fail only the run (stage "failed")
//
// ============================================================================

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/conflict-engine/internal/generator"
	"github.com/ChuLiYu/conflict-engine/internal/learner"
	"github.com/ChuLiYu/conflict-engine/internal/metrics"
	"github.com/ChuLiYu/conflict-engine/internal/registry"
	"github.com/ChuLiYu/conflict-engine/internal/storage/wal"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

var log = slog.Default()

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrRunFailed is returned alongside the final context of a failed run
	ErrRunFailed = errors.New("run failed")
	// ErrSolutionNotFound is returned for feedback on a solution the run never ranked
	ErrSolutionNotFound = errors.New("solution not found")
	// ErrNoDataSource is returned by Analyze when the engine has no data source
	ErrNoDataSource = errors.New("no data source configured")
	// ErrRunExists is returned by Analyze for an execution id that already has a checkpoint
	ErrRunExists = errors.New("run already exists")
)

// ============================================================================
// Collaborators
// ============================================================================

// DataSource returns the schedule records in scope of a query
type DataSource interface {
	Load(ctx context.Context, q types.Query) (types.Dataset, error)
}

// Checkpointer persists run contexts by execution id.
// Load wraps types.ErrRunNotFound for unknown ids.
type Checkpointer interface {
	Save(ctx context.Context, rc types.RunContext) error
	Load(ctx context.Context, executionID string) (types.RunContext, error)
	List(ctx context.Context) ([]types.Summary, error)
}

// FeedbackSink persists feedback records
type FeedbackSink interface {
	RecordFeedback(ctx context.Context, fb types.Feedback) error
}

// Journal receives one event per completed stage
type Journal interface {
	Append(event wal.Event) error
}

// ============================================================================
// Configuration
// ============================================================================

// Defaults applied by New for zero config values
const (
	DefaultTopConflicts      = 10
	DefaultGenerationTimeout = 30 * time.Second
)

// Config holds the engine's tunables
type Config struct {
	TopConflicts      int           // Conflicts handed to the generator per run
	GenerationTimeout time.Duration // Deadline of one generation hand-off
	Weights           types.Weights // Initial ranking weights of a new run
}

// Deps are the engine's collaborators. Only Source is required for Analyze;
// everything else has an in-process default or is optional.
type Deps struct {
	Source      DataSource
	Generator   generator.Generator
	Checkpoints Checkpointer // default: in-memory
	Feedback    FeedbackSink // optional
	Journal     Journal      // optional
	Adjuster    learner.Adjuster
	Metrics     *metrics.Collector // nil records nothing
	Registry    *registry.Registry
	Now         func() time.Time
}

// Engine runs analyses and feedback cycles
type Engine struct {
	cfg         Config
	source      DataSource
	generator   generator.Generator
	checkpoints Checkpointer
	feedback    FeedbackSink
	journal     Journal
	adjuster    learner.Adjuster
	metrics     *metrics.Collector
	registry    *registry.Registry
	now         func() time.Time
}

// New creates an engine, filling defaults for unset config and deps
func New(cfg Config, deps Deps) *Engine {
	if cfg.TopConflicts <= 0 {
		cfg.TopConflicts = DefaultTopConflicts
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.Weights == (types.Weights{}) {
		cfg.Weights = types.DefaultWeights()
	}

	e := &Engine{
		cfg:         cfg,
		source:      deps.Source,
		generator:   deps.Generator,
		checkpoints: deps.Checkpoints,
		feedback:    deps.Feedback,
		journal:     deps.Journal,
		adjuster:    deps.Adjuster,
		metrics:     deps.Metrics,
		registry:    deps.Registry,
		now:         deps.Now,
	}
	if e.checkpoints == nil {
		e.checkpoints = NewMemoryCheckpointer()
	}
	if e.adjuster == nil {
		r := learner.NewReinforcement()
		r.Prior = cfg.Weights
		e.adjuster = r
	}
	if e.registry == nil {
		e.registry = registry.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config { return e.cfg }

// Registry returns the run registry
func (e *Engine) Registry() *registry.Registry { return e.registry }

// ============================================================================
// Analyze
// ============================================================================

// AnalysisRequest starts a run
type AnalysisRequest struct {
	ExecutionID string         // generated when empty
	Query       types.Query    // project ids and date range
	Weights     *types.Weights // overrides Config.Weights when set
}

/*
Analyze runs the initial pipeline for a new execution.

Flow:
 1. validate the query and weights (types.ErrInvalidInput)
 2. registry.Begin (registry.ErrRunBusy when the id is in use)
 3. reject an id that already has a checkpoint (ErrRunExists); its
    iteration budget and feedback history belong to the existing run
 4. load the dataset, drive consolidate → … → end
 5. checkpoint the final context

A run that ended in stage "failed" is checkpointed and returned together
with an error wrapping ErrRunFailed.
*/
func (e *Engine) Analyze(ctx context.Context, req AnalysisRequest) (types.RunContext, error) {
	if err := req.Query.Validate(); err != nil {
		return types.RunContext{}, err
	}
	weights := e.cfg.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}
	if err := weights.Validate(); err != nil {
		return types.RunContext{}, err
	}
	if e.source == nil {
		return types.RunContext{}, ErrNoDataSource
	}

	id := req.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}
	if err := e.registry.Begin(id); err != nil {
		return types.RunContext{}, fmt.Errorf("analyze %s: %w", id, err)
	}
	if req.ExecutionID != "" {
		_, err := e.checkpoints.Load(ctx, id)
		switch {
		case err == nil:
			e.registry.Abandon(id)
			return types.RunContext{}, fmt.Errorf("analyze %s: %w", id, ErrRunExists)
		case !errors.Is(err, types.ErrRunNotFound):
			e.registry.Abandon(id)
			return types.RunContext{}, fmt.Errorf("analyze %s: %w", id, err)
		}
	}

	ds, err := e.source.Load(ctx, req.Query)
	if err != nil {
		e.registry.Abandon(id)
		return types.RunContext{}, fmt.Errorf("load dataset for %s: %w", id, err)
	}

	log.Info("analysis started", "execution_id", id,
		"projects", len(ds.Projects), "resources", len(ds.Resources), "assignments", len(ds.Assignments))
	e.metrics.RunStarted()

	rc := types.NewRunContext(id, req.Query, weights)
	rc.Projects = ds.Projects
	rc.Resources = ds.Resources
	rc.Assignments = ds.Assignments

	rc, _ = e.drive(ctx, StateConsolidate, rc, &pipeline{e: e})
	return e.finish(ctx, rc)
}

// ============================================================================
// Feedback
// ============================================================================

// FeedbackInput is an operator verdict on one ranked solution
type FeedbackInput struct {
	SolutionID    string
	Accepted      bool
	ManagerRating int
	Outcome       types.Outcome
	Context       map[string]string
}

// FeedbackResult is the outcome of one feedback cycle
type FeedbackResult struct {
	Context    types.RunContext
	Feedback   types.Feedback // the record as stored, with effectiveness
	LoopedBack bool           // detection and ranking re-ran with new weights
}

/*
SubmitFeedback records feedback on a checkpointed run and drives the
feedback pipeline.

Returns:
  - types.ErrInvalidInput for a malformed record
  - registry.ErrRunBusy while another operation holds the id
  - types.ErrRunNotFound for an unknown execution id
  - ErrRunFailed when the run already failed
  - ErrSolutionNotFound when the run never ranked the solution
*/
func (e *Engine) SubmitFeedback(ctx context.Context, executionID string, in FeedbackInput) (FeedbackResult, error) {
	if executionID == "" {
		return FeedbackResult{}, fmt.Errorf("%w: execution id is required", types.ErrInvalidInput)
	}
	fb := types.Feedback{
		ExecutionID:   executionID,
		SolutionID:    in.SolutionID,
		Accepted:      in.Accepted,
		ManagerRating: in.ManagerRating,
		Outcome:       in.Outcome,
		Context:       in.Context,
	}
	if err := fb.Validate(); err != nil {
		return FeedbackResult{}, err
	}

	if err := e.registry.Begin(executionID); err != nil {
		return FeedbackResult{}, fmt.Errorf("feedback %s: %w", executionID, err)
	}

	rc, err := e.checkpoints.Load(ctx, executionID)
	if err != nil {
		e.registry.Abandon(executionID)
		return FeedbackResult{}, fmt.Errorf("feedback %s: %w", executionID, err)
	}
	if rc.Stage == types.StageFailed {
		e.registry.Abandon(executionID)
		return FeedbackResult{}, fmt.Errorf("feedback %s: %w", executionID, ErrRunFailed)
	}
	if _, ok := rc.FindRanked(in.SolutionID); !ok {
		e.registry.Abandon(executionID)
		return FeedbackResult{}, fmt.Errorf("feedback %s: %w: %s", executionID, ErrSolutionNotFound, in.SolutionID)
	}

	log.Info("feedback received", "execution_id", executionID,
		"solution_id", in.SolutionID, "accepted", in.Accepted, "outcome", in.Outcome)
	e.metrics.RunStarted()

	p := &pipeline{e: e, pending: &fb}
	rc, looped := e.drive(ctx, StateFeedback, rc.RelinkAssignments(), p)
	rc, err = e.finish(ctx, rc)

	return FeedbackResult{Context: rc, Feedback: p.recorded, LoopedBack: looped}, err
}

// ============================================================================
// Status / Result / Recover
// ============================================================================

// Status returns the registry entry of executionID. Runs this process has
// not touched are looked up in the checkpoint store.
func (e *Engine) Status(ctx context.Context, executionID string) (registry.Entry, error) {
	if entry, ok := e.registry.Get(executionID); ok {
		return entry, nil
	}
	rc, err := e.checkpoints.Load(ctx, executionID)
	if err != nil {
		return registry.Entry{}, err
	}
	return registry.EntryFromSummary(rc.Summary()), nil
}

// Result returns the checkpointed context of executionID
func (e *Engine) Result(ctx context.Context, executionID string) (types.RunContext, error) {
	rc, err := e.checkpoints.Load(ctx, executionID)
	if err != nil {
		return types.RunContext{}, err
	}
	return rc.RelinkAssignments(), nil
}

// Runs lists the summaries of every checkpointed run
func (e *Engine) Runs(ctx context.Context) ([]types.Summary, error) {
	return e.checkpoints.List(ctx)
}

// Recover rebuilds the registry from the checkpoint store and returns the
// number of runs restored
func (e *Engine) Recover(ctx context.Context) (int, error) {
	summaries, err := e.checkpoints.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}
	entries := make([]registry.Entry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, registry.EntryFromSummary(s))
	}
	e.registry.Restore(entries)

	log.Info("registry recovered", "runs", len(entries))
	return len(entries), nil
}

// ============================================================================
// Driver
// ============================================================================

// drive dispatches stages from start until the state machine reaches end.
// It reports whether the run looped back into detection.
func (e *Engine) drive(ctx context.Context, start State, rc types.RunContext, p *pipeline) (types.RunContext, bool) {
	looped := false

	for state := start; state != StateEnd; {
		if err := ctx.Err(); err != nil {
			rc = failed(rc, fmt.Sprintf("%s: %v", state, err), e.now())
			break
		}

		began := time.Now()
		rc = e.invoke(ctx, state, p.stage(state), rc)
		e.metrics.ObserveStage(string(state), time.Since(began))
		e.record(wal.Event{
			Type:        wal.EventStage,
			ExecutionID: rc.ExecutionID,
			State:       string(state),
			Stage:       string(rc.Stage),
			Iteration:   rc.Iterations,
		})

		next := Next(state, rc)
		if isLoopback(state, next) {
			rc.Iterations++
			looped = true
			e.metrics.RecordLoopback()
			e.record(wal.Event{
				Type:        wal.EventLoopback,
				ExecutionID: rc.ExecutionID,
				State:       string(next),
				Stage:       string(rc.Stage),
				Iteration:   rc.Iterations,
			})
			log.Info("re-entering detection", "execution_id", rc.ExecutionID, "iteration", rc.Iterations)
		}
		state = next
	}
	return rc, looped
}

// invoke runs one stage, converting a panic into a failed run
func (e *Engine) invoke(ctx context.Context, state State, stage stageFunc, rc types.RunContext) (out types.RunContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("stage panicked", "execution_id", rc.ExecutionID, "state", state, "panic", r)
			out = failed(rc, fmt.Sprintf("%s: panic: %v", state, r), e.now())
		}
	}()

	if stage == nil {
		return failed(rc, fmt.Sprintf("no stage for state %q", state), e.now())
	}
	return stage(ctx, rc)
}

// finish checkpoints rc and settles its registry entry
func (e *Engine) finish(ctx context.Context, rc types.RunContext) (types.RunContext, error) {
	id := rc.ExecutionID
	summary := rc.Summary()

	if err := e.checkpoints.Save(context.WithoutCancel(ctx), rc); err != nil {
		log.Error("checkpoint failed", "execution_id", id, "error", err)
		_ = e.registry.Fail(id, summary, err)
		e.metrics.RunFinished(string(types.StageFailed))
		return rc, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	e.record(wal.Event{Type: wal.EventCheckpoint, ExecutionID: id, Stage: string(rc.Stage), Iteration: rc.Iterations})
	e.metrics.RunFinished(string(rc.Stage))

	if rc.Stage == types.StageFailed {
		cause := lastError(rc)
		_ = e.registry.Fail(id, summary, errors.New(cause))
		e.record(wal.Event{Type: wal.EventFailed, ExecutionID: id, Stage: string(rc.Stage), Iteration: rc.Iterations, Detail: cause})
		log.Warn("run failed", "execution_id", id, "error", cause)
		return rc, fmt.Errorf("%w: %s", ErrRunFailed, cause)
	}

	_ = e.registry.Checkpoint(summary)
	log.Info("run checkpointed", "execution_id", id, "stage", rc.Stage,
		"conflicts", rc.TotalConflicts, "ranked", len(rc.RankedSolutions), "iterations", rc.Iterations)
	return rc, nil
}

func (e *Engine) record(event wal.Event) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(event); err != nil {
		log.Warn("journal append failed", "execution_id", event.ExecutionID, "type", event.Type, "error", err)
	}
}

func lastError(rc types.RunContext) string {
	if n := len(rc.Errors); n > 0 {
		return rc.Errors[n-1]
	}
	return "unknown failure"
}
