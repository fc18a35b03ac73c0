// Package simulator answers what-if questions about a schedule: it applies a
// scenario to a copy of the dataset, re-runs consolidation and detection, and
// compares the outcome with the unchanged baseline.
//
// Scenarios:
//
//	add_resource       the most over-allocated resource with Role gains Availability*8 hours of daily capacity
//	delay_project      every assignment of ProjectID shifts Days calendar days
//	prioritize_project non-critical assignments of other projects shift by their slack
//
// The improvement score is the relative reduction of over-allocated hours,
// clamped to [-1, 1]. The input dataset is never modified.
package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ChuLiYu/conflict-engine/internal/consolidator"
	"github.com/ChuLiYu/conflict-engine/internal/dataset"
	"github.com/ChuLiYu/conflict-engine/internal/detector"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

var log = slog.Default()

// Kind names a scenario
type Kind string

const (
	KindAddResource       Kind = "add_resource"
	KindDelayProject      Kind = "delay_project"
	KindPrioritizeProject Kind = "prioritize_project"
)

// StandardDay is the capacity in hours of a fully available extra resource
const StandardDay = 8.0

// ErrUnknownScenario is returned for an unrecognized Kind
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario describes one hypothetical change
type Scenario struct {
	Kind         Kind    `json:"kind" yaml:"kind"`
	Role         string  `json:"role,omitempty" yaml:"role,omitempty"`
	Availability float64 `json:"availability,omitempty" yaml:"availability,omitempty"` // 0..1, zero means 1
	ProjectID    string  `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Days         int     `json:"days,omitempty" yaml:"days,omitempty"`
}

// Validate checks the parameters required by the scenario kind
func (s Scenario) Validate() error {
	switch s.Kind {
	case KindAddResource:
		if s.Role == "" {
			return fmt.Errorf("%w: add_resource requires a role", types.ErrInvalidInput)
		}
		if s.Availability < 0 || s.Availability > 1 {
			return fmt.Errorf("%w: availability %v outside [0,1]", types.ErrInvalidInput, s.Availability)
		}
	case KindDelayProject:
		if s.ProjectID == "" {
			return fmt.Errorf("%w: delay_project requires a project id", types.ErrInvalidInput)
		}
		if s.Days <= 0 {
			return fmt.Errorf("%w: delay must be a positive number of days", types.ErrInvalidInput)
		}
	case KindPrioritizeProject:
		if s.ProjectID == "" {
			return fmt.Errorf("%w: prioritize_project requires a project id", types.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, s.Kind)
	}
	return nil
}

// Metrics summarizes the conflicts of one schedule
type Metrics struct {
	TotalConflicts     int     `json:"total_conflicts"`
	CriticalConflicts  int     `json:"critical_conflicts"`
	OverallocatedHours float64 `json:"overallocated_hours"`
	AffectedResources  int     `json:"affected_resources"`
}

// Sub returns m - o
func (m Metrics) Sub(o Metrics) Metrics {
	return Metrics{
		TotalConflicts:     m.TotalConflicts - o.TotalConflicts,
		CriticalConflicts:  m.CriticalConflicts - o.CriticalConflicts,
		OverallocatedHours: m.OverallocatedHours - o.OverallocatedHours,
		AffectedResources:  m.AffectedResources - o.AffectedResources,
	}
}

// Result is the outcome of one simulation
type Result struct {
	Scenario         Scenario         `json:"scenario"`
	Baseline         Metrics          `json:"baseline"`
	Simulated        Metrics          `json:"simulated_metrics"`
	Delta            Metrics          `json:"delta"`
	ImprovementScore float64          `json:"improvement_score"`
	Recommendation   string           `json:"recommendation"`
	Changed          int              `json:"changed"` // assignments or resources touched
	Conflicts        []types.Conflict `json:"conflicts"`
}

// Simulate applies sc to the part of ds selected by q
func Simulate(ds types.Dataset, q types.Query, sc Scenario) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}
	if err := ds.Validate(); err != nil {
		return Result{}, err
	}

	baseline, baselineConflicts, err := evaluate(dataset.Filter(ds, q))
	if err != nil {
		return Result{}, fmt.Errorf("baseline: %w", err)
	}

	modified, changed := apply(clone(ds), sc, baselineConflicts)
	simulated, conflicts, err := evaluate(dataset.Filter(modified, q))
	if err != nil {
		return Result{}, fmt.Errorf("simulation: %w", err)
	}

	score := improvement(baseline, simulated)
	log.Info("scenario simulated", "kind", sc.Kind, "changed", changed,
		"baseline_conflicts", baseline.TotalConflicts, "simulated_conflicts", simulated.TotalConflicts)

	return Result{
		Scenario:         sc,
		Baseline:         baseline,
		Simulated:        simulated,
		Delta:            simulated.Sub(baseline),
		ImprovementScore: score,
		Recommendation:   recommend(score, baseline),
		Changed:          changed,
		Conflicts:        conflicts,
	}, nil
}

func evaluate(ds types.Dataset) (Metrics, []types.Conflict, error) {
	res := consolidator.Consolidate(ds.Resources, ds.Assignments)
	det, err := detector.Detect(res.Resources)
	if err != nil {
		return Metrics{}, nil, err
	}

	m := Metrics{TotalConflicts: det.Total, CriticalConflicts: det.Critical}
	affected := make(map[string]struct{})
	for _, c := range det.Conflicts {
		m.OverallocatedHours += c.OverallocationHours
		affected[c.ResourceID] = struct{}{}
	}
	m.OverallocatedHours = math.Round(m.OverallocatedHours*100) / 100
	m.AffectedResources = len(affected)
	return m, det.Conflicts, nil
}

func apply(ds types.Dataset, sc Scenario, baseline []types.Conflict) (types.Dataset, int) {
	changed := 0
	switch sc.Kind {
	case KindAddResource:
		availability := sc.Availability
		if availability == 0 {
			availability = 1
		}
		if i := mostOverallocated(ds.Resources, sc.Role, baseline); i >= 0 {
			ds.Resources[i].DailyCapacity += availability * StandardDay
			changed++
		}
	case KindDelayProject:
		for i := range ds.Assignments {
			if ds.Assignments[i].ProjectID == sc.ProjectID {
				shift(&ds.Assignments[i], sc.Days)
				changed++
			}
		}
	case KindPrioritizeProject:
		for i := range ds.Assignments {
			a := &ds.Assignments[i]
			if a.ProjectID == sc.ProjectID || a.OnCriticalPath || a.SlackDays <= 0 {
				continue
			}
			shift(a, a.SlackDays)
			changed++
		}
	}
	return ds, changed
}

// mostOverallocated returns the index of the resource with role that carries
// the most over-allocated hours in conflicts, or -1 when none of them does.
// Ties go to the resource listed first.
func mostOverallocated(resources []types.Resource, role string, conflicts []types.Conflict) int {
	hours := make(map[string]float64)
	for _, c := range conflicts {
		hours[c.ResourceID] += c.OverallocationHours
	}
	best, bestHours := -1, 0.0
	for i, r := range resources {
		if r.Role != role {
			continue
		}
		if h := hours[r.ID]; h > bestHours {
			best, bestHours = i, h
		}
	}
	return best
}

func shift(a *types.Assignment, days int) {
	a.StartDate = a.StartDate.AddDays(days)
	a.EndDate = a.EndDate.AddDays(days)
}

func clone(ds types.Dataset) types.Dataset {
	return types.Dataset{
		Projects:    append([]types.Project(nil), ds.Projects...),
		Resources:   append([]types.Resource(nil), ds.Resources...),
		Assignments: append([]types.Assignment(nil), ds.Assignments...),
	}
}

func improvement(baseline, simulated Metrics) float64 {
	if baseline.OverallocatedHours == 0 {
		if simulated.OverallocatedHours > 0 {
			return -1
		}
		return 0
	}
	score := (baseline.OverallocatedHours - simulated.OverallocatedHours) / baseline.OverallocatedHours
	score = math.Max(-1, math.Min(1, score))
	return math.Round(score*1000) / 1000
}

func recommend(score float64, baseline Metrics) string {
	switch {
	case baseline.TotalConflicts == 0 && score == 0:
		return "no conflicts to resolve"
	case score >= 0.5:
		return "strongly recommended"
	case score >= 0.2:
		return "recommended"
	case score > 0:
		return "marginal improvement"
	case score == 0:
		return "no impact"
	default:
		return "not recommended: increases over-allocation"
	}
}
