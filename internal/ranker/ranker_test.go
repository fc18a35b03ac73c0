package ranker

import (
	"math/rand"
	"testing"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solution(id string, feasibility, complexity float64, preserves bool) types.Solution {
	return types.Solution{
		ID:                id,
		ConflictID:        "res-1-2025-02-05",
		Strategy:          types.StrategyMoveNonCritical,
		Description:       "candidate " + id,
		FeasibilityScore:  feasibility,
		ComplexityScore:   complexity,
		PreservesDeadline: preserves,
	}
}

func TestScoreFormula(t *testing.T) {
	w := types.DefaultWeights()

	// 0.8*0.30 + 0.8*0.25 + 1.0*0.25 + 0.8*0.20 = 0.85
	assert.Equal(t, 0.85, Score(solution("a", 0.8, 0.2, true), w))

	// 0.5*0.30 + 0.5*0.25 + 0.3*0.25 + 0.5*0.20 = 0.45
	assert.Equal(t, 0.45, Score(solution("b", 0.5, 0.5, false), w))

	assert.Equal(t, 1.0, Score(solution("best", 1, 0, true), w))
	assert.Equal(t, 0.075, Score(solution("worst", 0, 1, false), w))
}

func TestRankOrdersDescendingAndSnapshotsWeights(t *testing.T) {
	w := types.DefaultWeights()
	solutions := []types.Solution{
		solution("low", 0.2, 0.9, false),
		solution("high", 0.9, 0.1, true),
		solution("mid", 0.6, 0.4, true),
	}

	ranked, err := Rank(solutions, w)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "high", ranked[0].ID)
	assert.Equal(t, "mid", ranked[1].ID)
	assert.Equal(t, "low", ranked[2].ID)
	for _, rs := range ranked {
		assert.Equal(t, w, rs.Weights)
		assert.Equal(t, Components(rs.Solution), rs.Components)
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	solutions := []types.Solution{
		solution("first", 0.7, 0.3, true),
		solution("second", 0.7, 0.3, true),
		solution("third", 0.7, 0.3, true),
	}

	ranked, err := Rank(solutions, types.DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
	assert.Equal(t, "third", ranked[2].ID)
}

func TestRankEmpty(t *testing.T) {
	ranked, err := Rank(nil, types.DefaultWeights())
	require.NoError(t, err)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestRankScoreStaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	w := types.Weights{Feasibility: 0.4, Impact: 0.1, Deadline: 0.3, Simplicity: 0.2}

	solutions := make([]types.Solution, 200)
	for i := range solutions {
		solutions[i] = solution("s", rng.Float64(), rng.Float64(), rng.Intn(2) == 0)
	}

	ranked, err := Rank(solutions, w)
	require.NoError(t, err)
	for i, rs := range ranked {
		assert.GreaterOrEqual(t, rs.RankScore, 0.0)
		assert.LessOrEqual(t, rs.RankScore, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].RankScore, rs.RankScore)
		}
	}
}

func TestRankDriftedWeightsAreNotRenormalized(t *testing.T) {
	w := types.Weights{Feasibility: 0.6, Impact: 0.5, Deadline: 0.5, Simplicity: 0.4}

	ranked, err := Rank([]types.Solution{solution("a", 1, 0, true)}, w)
	require.NoError(t, err)
	assert.Equal(t, 2.0, ranked[0].RankScore)
	assert.Equal(t, w, ranked[0].Weights)
}

func TestRankRejectsNegativeWeights(t *testing.T) {
	w := types.Weights{Feasibility: -0.1, Impact: 0.5, Deadline: 0.3, Simplicity: 0.3}
	_, err := Rank([]types.Solution{solution("a", 1, 0, true)}, w)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}
