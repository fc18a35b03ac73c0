package rpc

import (
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// ============================================================================
// ConflictEngine messages
// ============================================================================

// AnalyzeRequest starts an analysis for a project set and date range
type AnalyzeRequest struct {
	ExecutionID string         `json:"execution_id,omitempty"`
	ProjectIDs  []string       `json:"project_ids"`
	StartDate   types.Date     `json:"start_date"`
	EndDate     types.Date     `json:"end_date"`
	Weights     *types.Weights `json:"weights,omitempty"`
}

// Query returns the analysis scope of the request
func (r AnalyzeRequest) Query() types.Query {
	return types.Query{ProjectIDs: r.ProjectIDs, StartDate: r.StartDate, EndDate: r.EndDate}
}

// AnalyzeResponse reports the outcome of the initial pipeline
type AnalyzeResponse struct {
	Summary         types.Summary          `json:"summary"`
	Conflicts       []types.Conflict       `json:"conflicts,omitempty"`
	RankedSolutions []types.RankedSolution `json:"ranked_solutions,omitempty"`
	Errors          []string               `json:"errors,omitempty"`
}

// FeedbackRequest is an operator verdict on one ranked solution
type FeedbackRequest struct {
	ExecutionID   string            `json:"execution_id"`
	SolutionID    string            `json:"solution_id"`
	Accepted      bool              `json:"accepted"`
	ManagerRating int               `json:"manager_rating"`
	Outcome       types.Outcome     `json:"implementation_result"`
	Context       map[string]string `json:"context,omitempty"`
}

// FeedbackResponse reports the outcome of the feedback pipeline
type FeedbackResponse struct {
	Summary            types.Summary          `json:"summary"`
	EffectivenessScore float64                `json:"effectiveness_score"`
	LoopedBack         bool                   `json:"looped_back"`
	RankedSolutions    []types.RankedSolution `json:"ranked_solutions,omitempty"`
}

// StatusRequest asks for the current state of an execution id
type StatusRequest struct {
	ExecutionID string `json:"execution_id"`
}

// StatusResponse is the current state of an execution id
type StatusResponse struct {
	Status    string        `json:"status"`
	Summary   types.Summary `json:"summary"`
	LastError string        `json:"last_error,omitempty"`
}

// ============================================================================
// SolutionGenerator messages
// ============================================================================

// GenerateRequest hands the top conflicts of a run to a generator
type GenerateRequest struct {
	ExecutionID string           `json:"execution_id,omitempty"`
	Conflicts   []types.Conflict `json:"conflicts"`
}

// GenerateResponse maps conflict ids to candidate solutions
type GenerateResponse struct {
	Solutions map[string][]types.Solution `json:"solutions"`
}
