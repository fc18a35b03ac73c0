// Package ranker scores candidate solutions against the weighted rubric and
// orders them.
//
// rank = feasibility*w.feasibility + (1-complexity)*w.impact
//      + deadline*w.deadline + (1-complexity)*w.simplicity
//
// deadline is 1.0 when the solution preserves the deadline, 0.3 otherwise.
// Inverse complexity stands in for both impact and simplicity.
package ranker

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

const (
	deadlinePreserved = 1.0
	deadlineMissed    = 0.3
)

// Components derives the four scoring inputs of a solution
func Components(s types.Solution) types.Components {
	deadline := deadlineMissed
	if s.PreservesDeadline {
		deadline = deadlinePreserved
	}
	inverse := 1 - s.ComplexityScore
	return types.Components{
		Feasibility: s.FeasibilityScore,
		Impact:      inverse,
		Deadline:    deadline,
		Simplicity:  inverse,
	}
}

// Score computes the rank score of s rounded to 3 decimals
func Score(s types.Solution, w types.Weights) float64 {
	c := Components(s)
	raw := c.Feasibility*w.Feasibility +
		c.Impact*w.Impact +
		c.Deadline*w.Deadline +
		c.Simplicity*w.Simplicity
	return math.Round(raw*1000) / 1000
}

// Rank scores every solution and sorts them descending by score. Equal
// scores keep input order. Each result carries a copy of w.
//
// Weights are validated but never renormalized: a vector whose sum drifts
// from 1.0 produces scores outside [0,1] and is returned as-is.
func Rank(solutions []types.Solution, w types.Weights) ([]types.RankedSolution, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	ranked := make([]types.RankedSolution, 0, len(solutions))
	for _, s := range solutions {
		ranked = append(ranked, types.RankedSolution{
			Solution:   s,
			RankScore:  Score(s, w),
			Components: Components(s),
			Weights:    w,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore > ranked[j].RankScore
	})
	return ranked, nil
}
