// Package dataset loads schedule data (projects, resources, assignments) for
// the engine from a YAML or JSON file.
//
//	projects:
//	  - {id: proj-1, name: Apollo, start_date: 2025-02-01, end_date: 2025-03-31, priority: 1, status: active}
//	resources:
//	  - {id: res-1, name: Joao Silva, email: joao@company.com, role: Engineer, max_capacity_hours_per_day: 8}
//	assignments:
//	  - {id: asn-1, project_id: proj-1, resource_id: res-1, task_id: t1, task_name: Build,
//	     start_date: 2025-02-03, end_date: 2025-02-07, allocated_units: 1, total_work_hours: 40}
package dataset

import (
	"context"
	"fmt"
	"os"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"gopkg.in/yaml.v3"
)

// FileSource serves queries from a dataset file. The file is re-read on
// every Load so edits are picked up between runs.
type FileSource struct {
	path string
}

// NewFileSource creates a source over path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the dataset file path
func (s *FileSource) Path() string { return s.path }

// Read parses and validates the whole dataset file without filtering.
// Malformed records are reported as types.ErrInvalidInput.
func (s *FileSource) Read() (types.Dataset, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return types.Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	// JSON is a subset of YAML, one decoder serves both
	var ds types.Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return types.Dataset{}, fmt.Errorf("parse dataset %s: %w", s.path, err)
	}
	if err := ds.Validate(); err != nil {
		return types.Dataset{}, fmt.Errorf("dataset %s: %w", s.path, err)
	}
	return ds, nil
}

// Load returns the slice of the dataset relevant to q
func (s *FileSource) Load(ctx context.Context, q types.Query) (types.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return types.Dataset{}, err
	}
	ds, err := s.Read()
	if err != nil {
		return types.Dataset{}, err
	}
	return Filter(ds, q), nil
}

// Filter keeps the projects named by q, their assignments whose date range
// overlaps [q.StartDate, q.EndDate], and the resources those assignments
// reference. Assignments referencing unknown resources are kept so the
// consolidator can report them.
func Filter(ds types.Dataset, q types.Query) types.Dataset {
	wanted := make(map[string]struct{}, len(q.ProjectIDs))
	for _, id := range q.ProjectIDs {
		wanted[id] = struct{}{}
	}

	var out types.Dataset
	for _, p := range ds.Projects {
		if _, ok := wanted[p.ID]; ok {
			out.Projects = append(out.Projects, p)
		}
	}

	referenced := make(map[string]struct{})
	for _, a := range ds.Assignments {
		if _, ok := wanted[a.ProjectID]; !ok {
			continue
		}
		if !overlaps(a, q) {
			continue
		}
		out.Assignments = append(out.Assignments, a)
		referenced[a.ResourceID] = struct{}{}
	}

	for _, r := range ds.Resources {
		if _, ok := referenced[r.ID]; ok {
			out.Resources = append(out.Resources, r)
		}
	}
	return out
}

func overlaps(a types.Assignment, q types.Query) bool {
	if !q.StartDate.IsZero() && a.EndDate.Before(q.StartDate) {
		return false
	}
	if !q.EndDate.IsZero() && a.StartDate.After(q.EndDate) {
		return false
	}
	return true
}

// Memory is a fixed in-memory source
type Memory struct {
	Data types.Dataset
}

// Load implements the engine's data source contract
func (m Memory) Load(ctx context.Context, q types.Query) (types.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return types.Dataset{}, err
	}
	if err := m.Data.Validate(); err != nil {
		return types.Dataset{}, err
	}
	return Filter(m.Data, q), nil
}
