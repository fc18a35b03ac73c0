// ============================================================================
// Conflict Engine - Over-allocation Detector
// ============================================================================
//
// Package: internal/detector
// File: detector.go
// Purpose: Build a per-resource daily ledger and emit over-allocation conflicts
//
// Ledger:
//   For every assignment of a consolidated resource the total work hours are
//   spread evenly over the weekdays of its date range. Each weekday entry
//   accumulates hours and the task fragments that contributed them.
//
// Conflicts:
//   A ledger day yields a Conflict iff allocated hours > capacity. Severity is
//   tiered on the unrounded over-allocation percentage; hours are rounded to
//   2 decimals and percentages to 1 decimal afterwards.
//
// Ordering:
//   Severity rank desc, then percentage desc. Equal keys keep input order
//   (resource order, then date ascending).
//
// ============================================================================

package detector

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// ErrInvalidCapacity is returned when a resource has a non-positive daily capacity
var ErrInvalidCapacity = errors.New("resource capacity must be positive")

// Severity thresholds, lower bound inclusive
const (
	MediumThreshold   = 25.0
	HighThreshold     = 50.0
	CriticalThreshold = 100.0
)

// ClassifySeverity tiers an over-allocation percentage
func ClassifySeverity(percent float64) types.Severity {
	switch {
	case percent >= CriticalThreshold:
		return types.SeverityCritical
	case percent >= HighThreshold:
		return types.SeverityHigh
	case percent >= MediumThreshold:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// Result is the outcome of one detection pass
type Result struct {
	Conflicts  []types.Conflict
	Total      int
	Critical   int
	BySeverity map[types.Severity]int
	Warnings   []string
}

// dailyEntry is one ledger cell
type dailyEntry struct {
	date      types.Date
	hours     float64
	fragments []types.TaskFragment
}

// ConflictID returns the stable identifier of a resource/day conflict
func ConflictID(resourceID string, date types.Date) string {
	return fmt.Sprintf("%s-%s", resourceID, date)
}

// Detect runs the ledger over every consolidated resource.
//
// Returns:
//   - Result: sorted conflicts, aggregates and data-quality warnings
//   - error: ErrInvalidCapacity when a resource violates the capacity invariant
func Detect(resources []types.ConsolidatedResource) (Result, error) {
	var conflicts []types.Conflict
	var warnings []string

	for _, res := range resources {
		if !(res.Capacity > 0) || math.IsInf(res.Capacity, 0) {
			return Result{}, fmt.Errorf("%w: %s has %v hours/day", ErrInvalidCapacity, res.ID, res.Capacity)
		}

		ledger, w := buildLedger(res)
		warnings = append(warnings, w...)

		for _, entry := range ledger {
			if entry.hours <= res.Capacity {
				continue
			}
			conflicts = append(conflicts, newConflict(res, entry))
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		ri, rj := conflicts[i].Severity.Rank(), conflicts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return conflicts[i].OverallocationPercent > conflicts[j].OverallocationPercent
	})

	result := Result{
		Conflicts:  conflicts,
		Total:      len(conflicts),
		BySeverity: make(map[types.Severity]int, len(types.Severities)),
		Warnings:   warnings,
	}
	for _, sev := range types.Severities {
		result.BySeverity[sev] = 0
	}
	for _, c := range conflicts {
		result.BySeverity[c.Severity]++
	}
	result.Critical = result.BySeverity[types.SeverityCritical]

	return result, nil
}

// buildLedger folds a resource's assignments into date-ordered daily entries
func buildLedger(res types.ConsolidatedResource) ([]*dailyEntry, []string) {
	var warnings []string
	byDate := make(map[string]*dailyEntry)

	for _, a := range res.Assignments {
		if a.StartDate.IsZero() || a.EndDate.IsZero() {
			warnings = append(warnings, fmt.Sprintf("assignment %s has no date range", a.ID))
			continue
		}
		days := WeekdaysBetween(a.StartDate, a.EndDate)
		if len(days) == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"assignment %s has no weekdays between %s and %s", a.ID, a.StartDate, a.EndDate))
			continue
		}

		perDay := a.TotalWorkHours / float64(len(days))
		for _, d := range days {
			key := d.String()
			entry, ok := byDate[key]
			if !ok {
				entry = &dailyEntry{date: d}
				byDate[key] = entry
			}
			entry.hours += perDay
			entry.fragments = append(entry.fragments, types.TaskFragment{
				ProjectID: a.ProjectID,
				TaskID:    a.TaskID,
				TaskName:  a.TaskName,
				Hours:     round(perDay, 2),
			})
		}
	}

	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ledger := make([]*dailyEntry, 0, len(keys))
	for _, k := range keys {
		ledger = append(ledger, byDate[k])
	}
	return ledger, warnings
}

func newConflict(res types.ConsolidatedResource, entry *dailyEntry) types.Conflict {
	over := entry.hours - res.Capacity
	percent := over / res.Capacity * 100

	projects := make(map[string]struct{}, len(entry.fragments))
	for _, f := range entry.fragments {
		projects[f.ProjectID] = struct{}{}
	}

	return types.Conflict{
		ID:                    ConflictID(res.ID, entry.date),
		ResourceID:            res.ID,
		ResourceName:          res.Name,
		Date:                  entry.date,
		AllocatedHours:        round(entry.hours, 2),
		CapacityHours:         round(res.Capacity, 2),
		OverallocationHours:   round(over, 2),
		OverallocationPercent: round(percent, 1),
		Severity:              ClassifySeverity(percent),
		Tasks:                 entry.fragments,
		ProjectsCount:         len(projects),
	}
}

// Top returns at most n conflicts from the head of a sorted list
func Top(conflicts []types.Conflict, n int) []types.Conflict {
	if n <= 0 || n >= len(conflicts) {
		return conflicts
	}
	return conflicts[:n]
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
