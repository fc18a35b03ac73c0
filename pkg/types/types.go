// Package types defines the allocation model shared by every stage of the
// conflict engine: raw schedule records, derived conflicts, candidate
// solutions, ranking weights and operator feedback.
package types

import (
	"time"
)

// ============================================================================
// Schedule records (loaded once per run, immutable afterwards)
// ============================================================================

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPlanning  ProjectStatus = "planning"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on-hold"
)

// Project is a schedule that owns assignments
type Project struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	StartDate Date          `json:"start_date" yaml:"start_date"`
	EndDate   Date          `json:"end_date" yaml:"end_date"`
	Priority  int           `json:"priority" yaml:"priority"` // 1 (highest) .. 3
	Status    ProjectStatus `json:"status" yaml:"status"`
}

// Resource is a person as recorded by a single project
type Resource struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Email         string   `json:"email" yaml:"email"`
	Role          string   `json:"role" yaml:"role"`
	DailyCapacity float64  `json:"max_capacity_hours_per_day" yaml:"max_capacity_hours_per_day"`
	Department    string   `json:"department,omitempty" yaml:"department,omitempty"`
	SkillTags     []string `json:"skill_tags,omitempty" yaml:"skill_tags,omitempty"`
}

// Assignment binds one resource to one task of one project over a date range
type Assignment struct {
	ID             string  `json:"id" yaml:"id"`
	ProjectID      string  `json:"project_id" yaml:"project_id"`
	ResourceID     string  `json:"resource_id" yaml:"resource_id"`
	TaskID         string  `json:"task_id" yaml:"task_id"`
	TaskName       string  `json:"task_name" yaml:"task_name"`
	StartDate      Date    `json:"start_date" yaml:"start_date"`
	EndDate        Date    `json:"end_date" yaml:"end_date"`
	AllocatedUnits float64 `json:"allocated_units" yaml:"allocated_units"` // 0..1
	TotalWorkHours float64 `json:"total_work_hours" yaml:"total_work_hours"`
	OnCriticalPath bool    `json:"is_on_critical_path" yaml:"is_on_critical_path"`
	SlackDays      int     `json:"slack_days" yaml:"slack_days"`
}

// ConsolidatedResource is one distinct person across all projects.
// Assignments point into the run's assignment list; they are never copied.
type ConsolidatedResource struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"` // normalized identity key
	Role        string        `json:"role"`
	Capacity    float64       `json:"capacity"`
	Department  string        `json:"department,omitempty"`
	Skills      []string      `json:"skills,omitempty"`
	Assignments []*Assignment `json:"assignments"`
}

// ============================================================================
// Conflicts
// ============================================================================

// Severity tiers an over-allocation by percentage
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every tier from most to least severe
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities: CRITICAL=4 > HIGH=3 > MEDIUM=2 > LOW=1, unknown=0
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// TaskFragment is the slice of one task that lands on a single day
type TaskFragment struct {
	ProjectID string  `json:"project_id"`
	TaskID    string  `json:"task_id"`
	TaskName  string  `json:"task_name"`
	Hours     float64 `json:"hours"`
}

// Conflict is a day on which a resource is allocated beyond capacity
type Conflict struct {
	ID                    string         `json:"id"`
	ResourceID            string         `json:"resource_id"`
	ResourceName          string         `json:"resource_name"`
	Date                  Date           `json:"conflict_date"`
	AllocatedHours        float64        `json:"allocated_hours"`
	CapacityHours         float64        `json:"capacity_hours"`
	OverallocationHours   float64        `json:"overallocation_hours"`
	OverallocationPercent float64        `json:"overallocation_percent"`
	Severity              Severity       `json:"severity"`
	Tasks                 []TaskFragment `json:"tasks_involved"`
	ProjectsCount         int            `json:"projects_count"`
}

// ============================================================================
// Solutions and ranking
// ============================================================================

// Strategy is the remediation family of a candidate solution
type Strategy string

const (
	StrategyRedistributeWithSlack Strategy = "REDISTRIBUTE_WITH_SLACK"
	StrategyMoveNonCritical       Strategy = "MOVE_NONCRITICAL"
	StrategyExtendDuration        Strategy = "EXTEND_DURATION"
	StrategyAddResource           Strategy = "ADD_RESOURCE"
)

// Strategies lists the accepted strategy tags
var Strategies = []Strategy{
	StrategyRedistributeWithSlack,
	StrategyMoveNonCritical,
	StrategyExtendDuration,
	StrategyAddResource,
}

// Valid reports whether s is one of the fixed strategy tags
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// MaxDescriptionLength bounds Solution.Description in runes
const MaxDescriptionLength = 150

// ImpactAnalysis summarises what a solution disturbs
type ImpactAnalysis struct {
	AffectedTasks   []string `json:"affected_tasks" yaml:"affected_tasks"`
	DaysImpact      int      `json:"days_impact" yaml:"days_impact"`
	ResourcesNeeded int      `json:"resources_needed" yaml:"resources_needed"`
}

// Solution is a remediation candidate supplied by the external generator
type Solution struct {
	ID                string         `json:"id" yaml:"id"`
	ConflictID        string         `json:"conflict_id" yaml:"conflict_id"`
	Strategy          Strategy       `json:"strategy" yaml:"strategy"`
	Description       string         `json:"description" yaml:"description"`
	Reasoning         string         `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	FeasibilityScore  float64        `json:"feasibility_score" yaml:"feasibility_score"`
	ComplexityScore   float64        `json:"complexity_score" yaml:"complexity_score"`
	PreservesDeadline bool           `json:"preserves_deadline" yaml:"preserves_deadline"`
	Impact            ImpactAnalysis `json:"impact_analysis" yaml:"impact_analysis"`
}

// Weights are the ranking coefficients. They should sum to 1.0.
type Weights struct {
	Feasibility float64 `json:"feasibility" yaml:"feasibility"`
	Impact      float64 `json:"impact" yaml:"impact"`
	Deadline    float64 `json:"deadline" yaml:"deadline"`
	Simplicity  float64 `json:"simplicity" yaml:"simplicity"`
}

// DefaultWeights returns the initial rubric
func DefaultWeights() Weights {
	return Weights{Feasibility: 0.30, Impact: 0.25, Deadline: 0.25, Simplicity: 0.20}
}

// Sum returns the total of all four coefficients
func (w Weights) Sum() float64 {
	return w.Feasibility + w.Impact + w.Deadline + w.Simplicity
}

// Vector returns the coefficients in fixed order
// (feasibility, impact, deadline, simplicity)
func (w Weights) Vector() [4]float64 {
	return [4]float64{w.Feasibility, w.Impact, w.Deadline, w.Simplicity}
}

// WeightsFromVector is the inverse of Vector
func WeightsFromVector(v [4]float64) Weights {
	return Weights{Feasibility: v[0], Impact: v[1], Deadline: v[2], Simplicity: v[3]}
}

// Components are the per-dimension inputs a solution was scored on
type Components struct {
	Feasibility float64 `json:"feasibility"`
	Impact      float64 `json:"impact"`
	Deadline    float64 `json:"deadline"`
	Simplicity  float64 `json:"simplicity"`
}

// Vector returns the components in the same order as Weights.Vector
func (c Components) Vector() [4]float64 {
	return [4]float64{c.Feasibility, c.Impact, c.Deadline, c.Simplicity}
}

// RankedSolution is a Solution with its score and the weights used for it
type RankedSolution struct {
	Solution
	RankScore  float64    `json:"rank_score"`
	Components Components `json:"components"`
	Weights    Weights    `json:"weights"`
}

// ============================================================================
// Feedback
// ============================================================================

// Outcome is the implementation result reported by a manager
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomePartial || o == OutcomeFailed
}

// Feedback is an operator verdict on one ranked solution
type Feedback struct {
	ExecutionID        string            `json:"execution_id"`
	SolutionID         string            `json:"solution_id"`
	Accepted           bool              `json:"accepted"`
	ManagerRating      int               `json:"manager_rating"` // 1..5
	Outcome            Outcome           `json:"implementation_result"`
	EffectivenessScore float64           `json:"effectiveness_score"`
	Strategy           Strategy          `json:"strategy,omitempty"`
	Components         *Components       `json:"components,omitempty"`
	Context            map[string]string `json:"context,omitempty"`
	SubmittedAt        time.Time         `json:"submitted_at"`
}

// StrategyPattern aggregates feedback for one strategy
type StrategyPattern struct {
	Strategy             Strategy `json:"strategy"`
	Count                int      `json:"count"`
	Accepted             int      `json:"accepted"`
	AverageEffectiveness float64  `json:"average_effectiveness"`
}

// Patterns is the digest of the feedback history
type Patterns struct {
	FeedbackCount        int               `json:"feedback_count"`
	AcceptanceRate       float64           `json:"acceptance_rate"`
	AverageEffectiveness float64           `json:"average_effectiveness"`
	AverageRating        float64           `json:"average_rating"`
	ByStrategy           []StrategyPattern `json:"by_strategy,omitempty"`
}

// Dataset is what a data source returns for one query
type Dataset struct {
	Projects    []Project    `json:"projects" yaml:"projects"`
	Resources   []Resource   `json:"resources" yaml:"resources"`
	Assignments []Assignment `json:"assignments" yaml:"assignments"`
}
