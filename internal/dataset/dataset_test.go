package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const datasetYAML = `
projects:
  - {id: proj-1, name: Apollo, start_date: 2025-02-01, end_date: 2025-03-31, priority: 1, status: active}
  - {id: proj-2, name: Gemini, start_date: 2025-02-01, end_date: 2025-02-28, priority: 2, status: planning}
  - {id: proj-3, name: Mercury, start_date: 2025-01-01, end_date: 2025-12-31, priority: 3, status: active}
resources:
  - {id: res-1, name: Joao Silva, email: joao@company.com, role: Engineer, max_capacity_hours_per_day: 8}
  - {id: res-2, name: Maria Costa, email: maria@company.com, role: Designer, max_capacity_hours_per_day: 6}
  - {id: res-3, name: Idle Person, email: idle@company.com, role: Engineer, max_capacity_hours_per_day: 8}
assignments:
  - {id: asn-1, project_id: proj-1, resource_id: res-1, task_id: t1, task_name: Build,
     start_date: 2025-02-03, end_date: 2025-02-07, allocated_units: 1, total_work_hours: 40,
     is_on_critical_path: true}
  - {id: asn-2, project_id: proj-2, resource_id: res-1, task_id: t2, task_name: Review,
     start_date: 2025-02-05, end_date: 2025-02-07, allocated_units: 1, total_work_hours: 24, slack_days: 3}
  - {id: asn-3, project_id: proj-1, resource_id: res-2, task_id: t3, task_name: Later,
     start_date: 2025-05-01, end_date: 2025-05-09, total_work_hours: 30}
  - {id: asn-4, project_id: proj-3, resource_id: res-3, task_id: t4, task_name: Other,
     start_date: 2025-02-03, end_date: 2025-02-07, total_work_hours: 10}
`

func writeDataset(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func febQuery(projects ...string) types.Query {
	return types.Query{
		ProjectIDs: projects,
		StartDate:  types.MustParseDate("2025-02-01"),
		EndDate:    types.MustParseDate("2025-02-28"),
	}
}

func TestFileSourceLoadFilters(t *testing.T) {
	src := NewFileSource(writeDataset(t, "data.yaml", datasetYAML))

	ds, err := src.Load(context.Background(), febQuery("proj-1", "proj-2"))
	require.NoError(t, err)

	assert.Len(t, ds.Projects, 2)
	require.Len(t, ds.Assignments, 2, "asn-3 is outside the range, asn-4 belongs to proj-3")
	assert.Equal(t, "asn-1", ds.Assignments[0].ID)
	assert.True(t, ds.Assignments[0].OnCriticalPath)
	assert.Equal(t, 3, ds.Assignments[1].SlackDays)
	assert.Equal(t, "2025-02-05", ds.Assignments[1].StartDate.String())

	require.Len(t, ds.Resources, 1)
	assert.Equal(t, 8.0, ds.Resources[0].DailyCapacity)
}

func TestFileSourceReadsJSON(t *testing.T) {
	body := `{
    "projects": [{"id": "proj-1", "name": "Apollo", "start_date": "2025-02-01", "end_date": "2025-02-28"}],
    "resources": [{"id": "res-1", "email": "a@b.com", "max_capacity_hours_per_day": 8}],
    "assignments": [{"id": "asn-1", "project_id": "proj-1", "resource_id": "res-1",
                     "start_date": "2025-02-03", "end_date": "2025-02-04", "total_work_hours": 20}]
  }`
	src := NewFileSource(writeDataset(t, "data.json", body))

	ds, err := src.Load(context.Background(), febQuery("proj-1"))
	require.NoError(t, err)
	require.Len(t, ds.Assignments, 1)
	assert.Equal(t, 20.0, ds.Assignments[0].TotalWorkHours)
}

func TestFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background(), febQuery("p"))
	assert.Error(t, err)

	bad := NewFileSource(writeDataset(t, "bad.yaml", "assignments:\n  - {start_date: not-a-date}\n"))
	_, err = bad.Load(context.Background(), febQuery("p"))
	assert.Error(t, err)
}

func TestFilterKeepsUnknownResourceReferences(t *testing.T) {
	ds := types.Dataset{
		Assignments: []types.Assignment{{
			ID: "asn-x", ProjectID: "p", ResourceID: "ghost",
			StartDate: types.MustParseDate("2025-02-03"), EndDate: types.MustParseDate("2025-02-03"),
		}},
	}
	out := Filter(ds, febQuery("p"))
	assert.Len(t, out.Assignments, 1)
	assert.Empty(t, out.Resources)
}

func TestMemorySource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Memory{}.Load(ctx, febQuery("p"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMalformedRecordsAreRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative hours", `
resources:
  - {id: res-1, email: a@b.com, max_capacity_hours_per_day: 8}
assignments:
  - {id: asn-1, project_id: proj-1, resource_id: res-1,
     start_date: 2025-02-03, end_date: 2025-02-07, total_work_hours: -40}
`},
		{"fraction above one", `
resources:
  - {id: res-1, email: a@b.com, max_capacity_hours_per_day: 8}
assignments:
  - {id: asn-1, project_id: proj-1, resource_id: res-1,
     start_date: 2025-02-03, end_date: 2025-02-07, allocated_units: 1.5, total_work_hours: 40}
`},
		{"negative slack", `
resources:
  - {id: res-1, email: a@b.com, max_capacity_hours_per_day: 8}
assignments:
  - {id: asn-1, project_id: proj-1, resource_id: res-1,
     start_date: 2025-02-03, end_date: 2025-02-07, total_work_hours: 8, slack_days: -2}
`},
		{"resource without email", `
resources:
  - {id: res-1, max_capacity_hours_per_day: 8}
`},
		{"resource without id", `
resources:
  - {email: a@b.com, max_capacity_hours_per_day: 8}
`},
		{"assignment without resource", `
assignments:
  - {id: asn-1, project_id: proj-1, start_date: 2025-02-03, end_date: 2025-02-07, total_work_hours: 8}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(writeDataset(t, "data.yaml", tt.body)).Load(context.Background(), febQuery("proj-1"))
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestMemorySourceValidatesRecords(t *testing.T) {
	ds := types.Dataset{
		Resources: []types.Resource{{ID: "res-1", Email: "a@b.com", DailyCapacity: 8}},
		Assignments: []types.Assignment{{
			ID: "asn-1", ProjectID: "p", ResourceID: "res-1", TotalWorkHours: -40,
			StartDate: types.MustParseDate("2025-02-03"), EndDate: types.MustParseDate("2025-02-07"),
		}},
	}
	_, err := Memory{Data: ds}.Load(context.Background(), febQuery("p"))
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}
