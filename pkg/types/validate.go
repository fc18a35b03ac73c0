package types

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	// ErrInvalidInput marks input-contract violations rejected at the boundary
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunNotFound is returned by stores that hold no run for an execution id
	ErrRunNotFound = errors.New("run not found")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Validate checks the query scope
func (q Query) Validate() error {
	if len(q.ProjectIDs) == 0 {
		return invalid("at least one project id is required")
	}
	for _, id := range q.ProjectIDs {
		if id == "" {
			return invalid("project id must not be empty")
		}
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return invalid("start and end date are required")
	}
	if q.EndDate.Before(q.StartDate) {
		return invalid("end date %s precedes start date %s", q.EndDate, q.StartDate)
	}
	return nil
}

// Validate checks a resource record. Capacity is left to the detector, which
// fails the run on a non-positive value.
func (r Resource) Validate() error {
	if r.ID == "" {
		return invalid("resource id is required")
	}
	if r.Email == "" {
		return invalid("resource %s has no email", r.ID)
	}
	return nil
}

// Validate checks an assignment record. An inverted date range is not
// rejected here; the detector reports it as a warning.
func (a Assignment) Validate() error {
	if a.ProjectID == "" || a.ResourceID == "" {
		return invalid("assignment %s needs a project id and a resource id", a.ID)
	}
	if !unitInterval(a.AllocatedUnits) {
		return invalid("assignment %s: allocated_units %v outside [0,1]", a.ID, a.AllocatedUnits)
	}
	if math.IsNaN(a.TotalWorkHours) || math.IsInf(a.TotalWorkHours, 0) || a.TotalWorkHours < 0 {
		return invalid("assignment %s: total_work_hours %v must be a non-negative number", a.ID, a.TotalWorkHours)
	}
	if a.SlackDays < 0 {
		return invalid("assignment %s: slack_days %d is negative", a.ID, a.SlackDays)
	}
	return nil
}

// Validate checks every resource and assignment record
func (d Dataset) Validate() error {
	for _, r := range d.Resources {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, a := range d.Assignments {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a generator-supplied solution
func (s Solution) Validate() error {
	if s.ConflictID == "" {
		return invalid("solution has no conflict id")
	}
	if !s.Strategy.Valid() {
		return invalid("unknown strategy %q", s.Strategy)
	}
	if utf8.RuneCountInString(s.Description) > MaxDescriptionLength {
		return invalid("description exceeds %d characters", MaxDescriptionLength)
	}
	if !unitInterval(s.FeasibilityScore) {
		return invalid("feasibility_score %v outside [0,1]", s.FeasibilityScore)
	}
	if !unitInterval(s.ComplexityScore) {
		return invalid("complexity_score %v outside [0,1]", s.ComplexityScore)
	}
	if s.Impact.DaysImpact < 0 || s.Impact.ResourcesNeeded < 0 {
		return invalid("impact analysis counts must be non-negative")
	}
	return nil
}

// Validate checks that every coefficient is finite and non-negative.
// A vector that does not sum to 1.0 is still valid; see SumDrift.
func (w Weights) Validate() error {
	for i, v := range w.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("weight %d is not finite", i)
		}
		if v < 0 {
			return invalid("weight %d is negative (%v)", i, v)
		}
	}
	return nil
}

// SumDrift returns how far the coefficients are from summing to 1.0
func (w Weights) SumDrift() float64 {
	return math.Abs(w.Sum() - 1.0)
}

// Validate checks an operator feedback record
func (f Feedback) Validate() error {
	if f.SolutionID == "" {
		return invalid("solution id is required")
	}
	if f.ManagerRating < 1 || f.ManagerRating > 5 {
		return invalid("manager_rating %d outside 1..5", f.ManagerRating)
	}
	if !f.Outcome.Valid() {
		return invalid("unknown implementation_result %q", f.Outcome)
	}
	return nil
}
