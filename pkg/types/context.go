package types

import (
	"time"
)

// Stage names the last completed step of a run
type Stage string

const (
	StageInitialized      Stage = "initialization"
	StageConsolidated     Stage = "consolidation_complete"
	StageDetected         Stage = "detection_complete"
	StageGenerated        Stage = "generation_complete"
	StageGenerationFailed Stage = "generation_failed"
	StageRanked           Stage = "ranking_complete"
	StageFeedbackRecorded Stage = "feedback_recorded"
	StagePatternsAnalyzed Stage = "patterns_analyzed"
	StageWeightsAdjusted  Stage = "weights_adjusted"
	StageFailed           Stage = "failed"
)

// Query is the original analysis request scope
type Query struct {
	ProjectIDs []string `json:"project_ids" yaml:"project_ids"`
	StartDate  Date     `json:"start_date" yaml:"start_date"`
	EndDate    Date     `json:"end_date" yaml:"end_date"`
}

// RunContext is the state threaded through every stage of one execution.
//
// Stages never mutate a RunContext they receive: they return a copy with
// their own fields replaced. Slices owned by earlier stages are shared
// read-only between the copies; anything a stage extends (errors,
// feedback, timestamps) is copied before it is extended.
type RunContext struct {
	ExecutionID string `json:"execution_id"`
	Stage       Stage  `json:"stage"`
	Iterations  int    `json:"iterations"`
	Query       Query  `json:"query"`

	Projects              []Project              `json:"projects,omitempty"`
	Resources             []Resource             `json:"resources,omitempty"`
	Assignments           []Assignment           `json:"assignments,omitempty"`
	ConsolidatedResources []ConsolidatedResource `json:"consolidated_resources,omitempty"`

	Conflicts         []Conflict `json:"conflicts,omitempty"`
	TotalConflicts    int        `json:"total_conflicts"`
	CriticalConflicts int        `json:"critical_conflicts"`

	Solutions       []Solution       `json:"solutions,omitempty"`
	TotalSolutions  int              `json:"total_solutions"`
	Weights         Weights          `json:"weights"`
	RankedSolutions []RankedSolution `json:"ranked_solutions,omitempty"`

	FeedbackHistory        []Feedback `json:"feedback_history,omitempty"`
	Patterns               Patterns   `json:"patterns"`
	ShouldContinue         bool       `json:"should_continue"`
	TriggerPatternAnalysis bool       `json:"trigger_pattern_analysis"`

	Timestamps map[string]time.Time `json:"timestamps,omitempty"`
	Errors     []string             `json:"errors,omitempty"`
}

// NewRunContext creates the initial context of an execution
func NewRunContext(executionID string, query Query, weights Weights) RunContext {
	return RunContext{
		ExecutionID:    executionID,
		Stage:          StageInitialized,
		Query:          query,
		Weights:        weights,
		ShouldContinue: true,
		Timestamps:     map[string]time.Time{},
	}
}

// WithStage returns a copy that records stage as completed at now
func (rc RunContext) WithStage(stage Stage, now time.Time) RunContext {
	timestamps := make(map[string]time.Time, len(rc.Timestamps)+1)
	for k, v := range rc.Timestamps {
		timestamps[k] = v
	}
	timestamps[string(stage)] = now

	rc.Stage = stage
	rc.Timestamps = timestamps
	return rc
}

// WithErrors returns a copy with msgs appended to the error log
func (rc RunContext) WithErrors(msgs ...string) RunContext {
	if len(msgs) == 0 {
		return rc
	}
	errs := make([]string, 0, len(rc.Errors)+len(msgs))
	errs = append(errs, rc.Errors...)
	errs = append(errs, msgs...)
	rc.Errors = errs
	return rc
}

// WithFeedback returns a copy with fb appended to the feedback history
func (rc RunContext) WithFeedback(fb Feedback) RunContext {
	history := make([]Feedback, 0, len(rc.FeedbackHistory)+1)
	history = append(history, rc.FeedbackHistory...)
	history = append(history, fb)
	rc.FeedbackHistory = history
	return rc
}

// FindRanked looks up a ranked solution by id
func (rc RunContext) FindRanked(solutionID string) (RankedSolution, bool) {
	for _, rs := range rc.RankedSolutions {
		if rs.ID == solutionID {
			return rs, true
		}
	}
	return RankedSolution{}, false
}

// Summary is the compact view of a run exposed to the transport layer
type Summary struct {
	ExecutionID       string    `json:"execution_id"`
	Stage             Stage     `json:"stage"`
	Iterations        int       `json:"iterations"`
	TotalConflicts    int       `json:"total_conflicts"`
	CriticalConflicts int       `json:"critical_conflicts"`
	TotalSolutions    int       `json:"total_solutions"`
	RankedSolutions   int       `json:"ranked_solutions"`
	FeedbackCount     int       `json:"feedback_count"`
	ErrorCount        int       `json:"error_count"`
	Weights           Weights   `json:"weights"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Summary derives the transport summary of rc
func (rc RunContext) Summary() Summary {
	var updated time.Time
	for _, ts := range rc.Timestamps {
		if ts.After(updated) {
			updated = ts
		}
	}
	return Summary{
		ExecutionID:       rc.ExecutionID,
		Stage:             rc.Stage,
		Iterations:        rc.Iterations,
		TotalConflicts:    rc.TotalConflicts,
		CriticalConflicts: rc.CriticalConflicts,
		TotalSolutions:    rc.TotalSolutions,
		RankedSolutions:   len(rc.RankedSolutions),
		FeedbackCount:     len(rc.FeedbackHistory),
		ErrorCount:        len(rc.Errors),
		Weights:           rc.Weights,
		UpdatedAt:         updated,
	}
}

// RelinkAssignments points every consolidated assignment back into
// rc.Assignments by id. A context decoded from JSON holds private copies;
// relinking restores the shared-reference layout.
func (rc RunContext) RelinkAssignments() RunContext {
	if len(rc.ConsolidatedResources) == 0 {
		return rc
	}
	byID := make(map[string]*Assignment, len(rc.Assignments))
	for i := range rc.Assignments {
		byID[rc.Assignments[i].ID] = &rc.Assignments[i]
	}
	resources := make([]ConsolidatedResource, len(rc.ConsolidatedResources))
	for i, cr := range rc.ConsolidatedResources {
		linked := make([]*Assignment, 0, len(cr.Assignments))
		for _, a := range cr.Assignments {
			if shared, ok := byID[a.ID]; ok {
				linked = append(linked, shared)
			} else {
				linked = append(linked, a)
			}
		}
		cr.Assignments = linked
		resources[i] = cr
	}
	rc.ConsolidatedResources = resources
	return rc
}
