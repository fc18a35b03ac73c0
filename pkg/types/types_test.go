package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDateTextForms(t *testing.T) {
	d := NewDate(2025, time.February, 3)
	assert.Equal(t, "2025-02-03", d.String())
	assert.True(t, d.IsWeekday())
	assert.False(t, d.AddDays(5).IsWeekday(), "2025-02-08 is a Saturday")

	raw, err := json.Marshal(struct {
		D Date `json:"d"`
	}{d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-02-03"}`, string(raw))

	var fromYAML struct {
		D Date `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: 2025-02-03\n"), &fromYAML))
	assert.True(t, fromYAML.D.Equal(d))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("03/02/2025")
	assert.Error(t, err)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, 0, Severity("UNKNOWN").Rank())
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
	assert.NoError(t, DefaultWeights().Validate())
	assert.Equal(t, DefaultWeights(), WeightsFromVector(DefaultWeights().Vector()))
}

func TestWeightsValidate(t *testing.T) {
	drifted := Weights{Feasibility: 0.5, Impact: 0.5, Deadline: 0.5, Simplicity: 0}
	assert.NoError(t, drifted.Validate(), "drift from 1.0 is accepted")
	assert.InDelta(t, 0.5, drifted.SumDrift(), 1e-9)

	negative := Weights{Feasibility: -0.1, Impact: 0.6, Deadline: 0.3, Simplicity: 0.2}
	assert.ErrorIs(t, negative.Validate(), ErrInvalidInput)
}

func TestSolutionValidate(t *testing.T) {
	valid := Solution{
		ConflictID:       "res-1-2025-02-03",
		Strategy:         StrategyMoveNonCritical,
		Description:      "Move task to next week",
		FeasibilityScore: 0.8,
		ComplexityScore:  0.2,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(s *Solution){
		"missing conflict": func(s *Solution) { s.ConflictID = "" },
		"bad strategy":     func(s *Solution) { s.Strategy = "PRAY" },
		"long description": func(s *Solution) { s.Description = strings.Repeat("x", MaxDescriptionLength+1) },
		"feasibility > 1":  func(s *Solution) { s.FeasibilityScore = 1.2 },
		"complexity < 0":   func(s *Solution) { s.ComplexityScore = -0.1 },
		"negative impact":  func(s *Solution) { s.Impact.DaysImpact = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidInput)
		})
	}
}

func TestFeedbackValidate(t *testing.T) {
	fb := Feedback{SolutionID: "s1", ManagerRating: 4, Outcome: OutcomeSuccess}
	require.NoError(t, fb.Validate())

	fb.ManagerRating = 6
	assert.Error(t, fb.Validate())

	fb.ManagerRating = 3
	fb.Outcome = "meh"
	assert.Error(t, fb.Validate())
}

func TestDatasetValidate(t *testing.T) {
	valid := Assignment{
		ID: "a1", ProjectID: "p1", ResourceID: "r1", AllocatedUnits: 0.5, TotalWorkHours: 20, SlackDays: 2,
		StartDate: MustParseDate("2025-02-03"), EndDate: MustParseDate("2025-02-07"),
	}
	ds := Dataset{
		Resources:   []Resource{{ID: "r1", Email: "ana@example.com", DailyCapacity: 8}},
		Assignments: []Assignment{valid},
	}
	require.NoError(t, ds.Validate())

	// inverted ranges are reported downstream, not rejected
	inverted := valid
	inverted.StartDate, inverted.EndDate = inverted.EndDate, inverted.StartDate
	assert.NoError(t, inverted.Validate())

	mutations := map[string]func(*Assignment){
		"negative hours":   func(a *Assignment) { a.TotalWorkHours = -40 },
		"NaN hours":        func(a *Assignment) { a.TotalWorkHours = math.NaN() },
		"units above one":  func(a *Assignment) { a.AllocatedUnits = 1.5 },
		"negative units":   func(a *Assignment) { a.AllocatedUnits = -0.1 },
		"negative slack":   func(a *Assignment) { a.SlackDays = -1 },
		"missing resource": func(a *Assignment) { a.ResourceID = "" },
	}
	for name, mutate := range mutations {
		a := valid
		mutate(&a)
		assert.ErrorIs(t, Dataset{Assignments: []Assignment{a}}.Validate(), ErrInvalidInput, name)
	}

	assert.ErrorIs(t, Resource{ID: "r1"}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, Resource{Email: "ana@example.com"}.Validate(), ErrInvalidInput)
}

func TestQueryValidate(t *testing.T) {
	q := Query{
		ProjectIDs: []string{"p1"},
		StartDate:  MustParseDate("2025-02-01"),
		EndDate:    MustParseDate("2025-02-28"),
	}
	require.NoError(t, q.Validate())

	q.EndDate = MustParseDate("2025-01-01")
	assert.ErrorIs(t, q.Validate(), ErrInvalidInput)

	assert.Error(t, Query{}.Validate())
}

func TestRunContextUpdatesDoNotAlias(t *testing.T) {
	base := NewRunContext("exec-1", Query{}, DefaultWeights())
	base = base.WithErrors("first")

	a := base.WithErrors("a")
	b := base.WithErrors("b")

	assert.Equal(t, []string{"first"}, base.Errors)
	assert.Equal(t, []string{"first", "a"}, a.Errors)
	assert.Equal(t, []string{"first", "b"}, b.Errors)

	now := time.Now()
	staged := base.WithStage(StageDetected, now)
	assert.Equal(t, StageDetected, staged.Stage)
	assert.NotContains(t, base.Timestamps, string(StageDetected))
	assert.Equal(t, now, staged.Timestamps[string(StageDetected)])

	withFB := base.WithFeedback(Feedback{SolutionID: "s"})
	assert.Len(t, withFB.FeedbackHistory, 1)
	assert.Empty(t, base.FeedbackHistory)
}

func TestRelinkAssignments(t *testing.T) {
	rc := RunContext{
		Assignments: []Assignment{{ID: "a1", TotalWorkHours: 8}},
		ConsolidatedResources: []ConsolidatedResource{
			{ID: "r1", Assignments: []*Assignment{{ID: "a1", TotalWorkHours: 8}}},
		},
	}

	linked := rc.RelinkAssignments()
	require.Len(t, linked.ConsolidatedResources[0].Assignments, 1)
	assert.Same(t, &linked.Assignments[0], linked.ConsolidatedResources[0].Assignments[0])
}

func TestSummary(t *testing.T) {
	rc := NewRunContext("exec-9", Query{}, DefaultWeights())
	rc.TotalConflicts = 3
	rc.CriticalConflicts = 1
	rc.RankedSolutions = []RankedSolution{{}, {}}
	ts := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	rc = rc.WithStage(StageRanked, ts)

	s := rc.Summary()
	assert.Equal(t, "exec-9", s.ExecutionID)
	assert.Equal(t, StageRanked, s.Stage)
	assert.Equal(t, 2, s.RankedSolutions)
	assert.Equal(t, ts, s.UpdatedAt)
}
