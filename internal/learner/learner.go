// ============================================================================
// Conflict Engine - Weight Learner
// ============================================================================
//
// Package: internal/learner
// File: learner.go
// Purpose: Turn operator feedback into effectiveness scores, pattern digests
//          and adjusted ranking weights
//
// Contract of every Adjuster:
//   - pure function of (history, current weights)
//   - reports trigger=true only when the new vector differs materially
//   - idempotent: re-applying to the same history yields the same vector
//     and no trigger
//
// ============================================================================

package learner

import (
	"math"
	"sort"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// partialCredit scales the rating of an accepted but partially successful solution
const partialCredit = 0.7

// Effectiveness scores one verdict in [0,1]
//
//   - accepted + success: rating/5
//   - accepted + partial: rating/5 * 0.7
//   - anything else:      0
func Effectiveness(accepted bool, rating int, outcome types.Outcome) float64 {
	if !accepted {
		return 0
	}
	base := float64(rating) / 5
	switch outcome {
	case types.OutcomeSuccess:
		return base
	case types.OutcomePartial:
		return base * partialCredit
	default:
		return 0
	}
}

// AnalyzePatterns digests the feedback history
func AnalyzePatterns(history []types.Feedback) types.Patterns {
	p := types.Patterns{FeedbackCount: len(history)}
	if len(history) == 0 {
		return p
	}

	var accepted int
	var effectiveness, rating float64
	byStrategy := make(map[types.Strategy]*types.StrategyPattern)

	for _, fb := range history {
		if fb.Accepted {
			accepted++
		}
		effectiveness += fb.EffectivenessScore
		rating += float64(fb.ManagerRating)

		if fb.Strategy == "" {
			continue
		}
		sp, ok := byStrategy[fb.Strategy]
		if !ok {
			sp = &types.StrategyPattern{Strategy: fb.Strategy}
			byStrategy[fb.Strategy] = sp
		}
		sp.Count++
		if fb.Accepted {
			sp.Accepted++
		}
		// running sum, turned into a mean below
		sp.AverageEffectiveness += fb.EffectivenessScore
	}

	n := float64(len(history))
	p.AcceptanceRate = float64(accepted) / n
	p.AverageEffectiveness = effectiveness / n
	p.AverageRating = rating / n

	for _, sp := range byStrategy {
		sp.AverageEffectiveness /= float64(sp.Count)
		p.ByStrategy = append(p.ByStrategy, *sp)
	}
	sort.Slice(p.ByStrategy, func(i, j int) bool {
		return p.ByStrategy[i].Strategy < p.ByStrategy[j].Strategy
	})
	return p
}

// Adjuster is a pluggable weight-adjustment policy
type Adjuster interface {
	Adjust(history []types.Feedback, current types.Weights) (types.Weights, bool)
}

// AdjusterFunc adapts a function to Adjuster
type AdjusterFunc func(history []types.Feedback, current types.Weights) (types.Weights, bool)

// Adjust calls f
func (f AdjusterFunc) Adjust(history []types.Feedback, current types.Weights) (types.Weights, bool) {
	return f(history, current)
}

// L1 returns the sum of absolute coefficient differences
func L1(a, b types.Weights) float64 {
	av, bv := a.Vector(), b.Vector()
	d := 0.0
	for i := range av {
		d += math.Abs(av[i] - bv[i])
	}
	return d
}
