package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// overlap: r1 carries 16h/day on 2025-03-05..07 against a capacity of 8
func overlap() types.Dataset {
	return types.Dataset{
		Projects: []types.Project{{ID: "p1"}, {ID: "p2"}},
		Resources: []types.Resource{
			{ID: "r1", Name: "Ana", Email: "ana@example.com", Role: "engineer", DailyCapacity: 8},
			{ID: "r2", Name: "Bo", Email: "bo@example.com", Role: "designer", DailyCapacity: 8},
		},
		Assignments: []types.Assignment{
			{
				ID: "a1", ProjectID: "p1", ResourceID: "r1", OnCriticalPath: true,
				StartDate: types.MustParseDate("2025-03-03"), EndDate: types.MustParseDate("2025-03-07"),
				TotalWorkHours: 40,
			},
			{
				ID: "a2", ProjectID: "p2", ResourceID: "r1", SlackDays: 5,
				StartDate: types.MustParseDate("2025-03-05"), EndDate: types.MustParseDate("2025-03-07"),
				TotalWorkHours: 24,
			},
		},
	}
}

func march() types.Query {
	return types.Query{
		ProjectIDs: []string{"p1", "p2"},
		StartDate:  types.MustParseDate("2025-03-01"),
		EndDate:    types.MustParseDate("2025-03-31"),
	}
}

func TestDelayProjectOutOfOverlapRemovesConflicts(t *testing.T) {
	ds := overlap()
	res, err := Simulate(ds, march(), Scenario{Kind: KindDelayProject, ProjectID: "p2", Days: 7})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Baseline.TotalConflicts)
	assert.Equal(t, 24.0, res.Baseline.OverallocatedHours)
	assert.Equal(t, 1, res.Baseline.AffectedResources)

	assert.Zero(t, res.Simulated.TotalConflicts)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, -3, res.Delta.TotalConflicts)
	assert.Equal(t, 1.0, res.ImprovementScore)
	assert.Equal(t, "strongly recommended", res.Recommendation)
	assert.Equal(t, 1, res.Changed)

	assert.Equal(t, "2025-03-05", ds.Assignments[1].StartDate.String(), "input must not be modified")
}

func TestDelayCompressingWorkIntoFewerWeekdaysIsRejected(t *testing.T) {
	// a1 moves to Wed 03-05 .. Sun 03-09: 40h over three weekdays
	res, err := Simulate(overlap(), march(), Scenario{Kind: KindDelayProject, ProjectID: "p1", Days: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Simulated.TotalConflicts)
	assert.Greater(t, res.Simulated.OverallocatedHours, res.Baseline.OverallocatedHours)
	assert.Less(t, res.ImprovementScore, 0.0)
	assert.Equal(t, "not recommended: increases over-allocation", res.Recommendation)
}

func TestAddResource(t *testing.T) {
	tests := []struct {
		name         string
		availability float64
		conflicts    int
		hours        float64
		score        float64
		verdict      string
	}{
		{"full time", 0, 0, 0, 1, "strongly recommended"},
		{"half time", 0.5, 3, 12, 0.5, "strongly recommended"},
		{"quarter time", 0.25, 3, 18, 0.25, "recommended"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Simulate(overlap(), march(), Scenario{
				Kind: KindAddResource, Role: "engineer", Availability: tt.availability,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.conflicts, res.Simulated.TotalConflicts)
			assert.Equal(t, tt.hours, res.Simulated.OverallocatedHours)
			assert.InDelta(t, tt.score, res.ImprovementScore, 1e-9)
			assert.Equal(t, tt.verdict, res.Recommendation)
			assert.Equal(t, 1, res.Changed)
		})
	}
}

func TestAddResourceRelievesOnlyTheBusiestOfTheRole(t *testing.T) {
	ds := overlap()
	ds.Resources = append(ds.Resources,
		types.Resource{ID: "r3", Name: "Caio", Email: "caio@example.com", Role: "engineer", DailyCapacity: 8},
		types.Resource{ID: "r4", Name: "Dora", Email: "dora@example.com", Role: "engineer", DailyCapacity: 8},
	)
	// Caio is 8h over on Friday only
	ds.Assignments = append(ds.Assignments,
		types.Assignment{
			ID: "a3", ProjectID: "p1", ResourceID: "r3",
			StartDate: types.MustParseDate("2025-03-03"), EndDate: types.MustParseDate("2025-03-07"),
			TotalWorkHours: 40,
		},
		types.Assignment{
			ID: "a4", ProjectID: "p2", ResourceID: "r3",
			StartDate: types.MustParseDate("2025-03-07"), EndDate: types.MustParseDate("2025-03-07"),
			TotalWorkHours: 8,
		},
	)

	res, err := Simulate(ds, march(), Scenario{Kind: KindAddResource, Role: "engineer"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Baseline.TotalConflicts)
	assert.Equal(t, 32.0, res.Baseline.OverallocatedHours)
	assert.Equal(t, 1, res.Changed, "one extra engineer is credited once")
	assert.Equal(t, 1, res.Simulated.TotalConflicts)
	assert.Equal(t, 8.0, res.Simulated.OverallocatedHours)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "r3", res.Conflicts[0].ResourceID)
	assert.InDelta(t, 0.75, res.ImprovementScore, 1e-9)
	assert.Equal(t, 8.0, ds.Resources[0].DailyCapacity, "input must not be modified")
}

func TestAddResourceForUnusedRoleHasNoImpact(t *testing.T) {
	res, err := Simulate(overlap(), march(), Scenario{Kind: KindAddResource, Role: "architect"})
	require.NoError(t, err)
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.ImprovementScore)
	assert.Equal(t, "no impact", res.Recommendation)
}

func TestPrioritizeProjectShiftsSlack(t *testing.T) {
	res, err := Simulate(overlap(), march(), Scenario{Kind: KindPrioritizeProject, ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Zero(t, res.Simulated.TotalConflicts)

	// the only other assignment is on the critical path of p1 and cannot move
	res, err = Simulate(overlap(), march(), Scenario{Kind: KindPrioritizeProject, ProjectID: "p2"})
	require.NoError(t, err)
	assert.Zero(t, res.Changed)
	assert.Equal(t, 3, res.Simulated.TotalConflicts)
}

func TestNoBaselineConflicts(t *testing.T) {
	q := march()
	q.ProjectIDs = []string{"p1"}
	res, err := Simulate(overlap(), q, Scenario{Kind: KindAddResource, Role: "engineer"})
	require.NoError(t, err)
	assert.Equal(t, "no conflicts to resolve", res.Recommendation)
}

func TestScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
		want error
	}{
		{"unknown kind", Scenario{Kind: "hire_everyone"}, ErrUnknownScenario},
		{"missing role", Scenario{Kind: KindAddResource}, types.ErrInvalidInput},
		{"availability above one", Scenario{Kind: KindAddResource, Role: "engineer", Availability: 2}, types.ErrInvalidInput},
		{"missing project", Scenario{Kind: KindDelayProject, Days: 3}, types.ErrInvalidInput},
		{"non-positive delay", Scenario{Kind: KindDelayProject, ProjectID: "p1"}, types.ErrInvalidInput},
		{"prioritize without project", Scenario{Kind: KindPrioritizeProject}, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(overlap(), march(), tt.sc)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Simulate(overlap(), types.Query{}, Scenario{Kind: KindDelayProject, ProjectID: "p1", Days: 1})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}
