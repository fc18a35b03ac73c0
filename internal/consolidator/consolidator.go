// ============================================================================
// Conflict Engine - Resource Consolidator
// ============================================================================
//
// Package: internal/consolidator
// File: consolidator.go
// Purpose: Merge per-project resource records into one canonical record per person
//
// Identity:
//   The identity key is the resource email, trimmed and case-folded. The first
//   raw record seen for a key defines name, role, capacity and skills.
//
// Assignment folding:
//   Each assignment is resolved by resource id to its raw record, then appended
//   to the consolidated resource of that record's identity. An assignment whose
//   resource id is unknown is skipped and reported as a warning.
//
// Ordering:
//   Output follows first-seen order of identities, so repeated runs over the
//   same input produce identical results.
//
// ============================================================================

package consolidator

import (
	"fmt"
	"strings"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// Result is the outcome of one consolidation pass
type Result struct {
	Resources []types.ConsolidatedResource
	Warnings  []string
}

// TotalAssignments counts assignments reachable from the consolidated list
func (r Result) TotalAssignments() int {
	total := 0
	for _, cr := range r.Resources {
		total += len(cr.Assignments)
	}
	return total
}

// NormalizeEmail returns the identity key of an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Consolidate merges duplicate resources and attaches assignments.
//
// The returned resources hold pointers into assignments; the caller must not
// modify that slice afterwards.
func Consolidate(resources []types.Resource, assignments []types.Assignment) Result {
	order := make([]string, 0, len(resources))
	byKey := make(map[string]*types.ConsolidatedResource, len(resources))
	keyByID := make(map[string]string, len(resources))

	for _, res := range resources {
		key := NormalizeEmail(res.Email)
		if _, seen := keyByID[res.ID]; !seen {
			keyByID[res.ID] = key
		}
		if _, exists := byKey[key]; exists {
			continue
		}
		byKey[key] = &types.ConsolidatedResource{
			ID:          res.ID,
			Name:        res.Name,
			Email:       key,
			Role:        res.Role,
			Capacity:    res.DailyCapacity,
			Department:  res.Department,
			Skills:      append([]string(nil), res.SkillTags...),
			Assignments: make([]*types.Assignment, 0),
		}
		order = append(order, key)
	}

	var warnings []string
	for i := range assignments {
		a := &assignments[i]
		key, ok := keyByID[a.ResourceID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"assignment %s references unknown resource %s", a.ID, a.ResourceID))
			continue
		}
		cr := byKey[key]
		cr.Assignments = append(cr.Assignments, a)
	}

	out := make([]types.ConsolidatedResource, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	return Result{Resources: out, Warnings: warnings}
}
