package generator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"gopkg.in/yaml.v3"
)

// Wildcard is the catalog key applied to conflicts without an explicit entry
const Wildcard = "*"

// Catalog is the on-disk form of a FileGenerator
//
//	solutions:
//	  "*":
//	    - strategy: MOVE_NONCRITICAL
//	      description: Move a non-critical task of {resource} off {date}
//	      feasibility_score: 0.8
//	      complexity_score: 0.3
//	      preserves_deadline: true
//	  "res-1-2025-02-05":
//	    - strategy: ADD_RESOURCE
//	      ...
//
// Descriptions and reasoning may use {conflict}, {resource} and {date}.
type Catalog struct {
	Solutions map[string][]types.Solution `yaml:"solutions"`
}

// FileGenerator answers from a static catalog
type FileGenerator struct {
	catalog Catalog
}

// NewFileGenerator wraps an in-memory catalog
func NewFileGenerator(catalog Catalog) *FileGenerator {
	return &FileGenerator{catalog: catalog}
}

// LoadFileGenerator reads a YAML catalog from path
func LoadFileGenerator(path string) (*FileGenerator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solution catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse solution catalog %s: %w", path, err)
	}
	return NewFileGenerator(catalog), nil
}

// Generate implements Generator.
// Wildcard templates are instantiated per conflict; their ids are cleared so
// the engine assigns per-conflict ids.
func (g *FileGenerator) Generate(ctx context.Context, conflicts []types.Conflict) (map[string][]types.Solution, error) {
	out := make(map[string][]types.Solution, len(conflicts))
	for _, c := range conflicts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		templates, explicit := g.catalog.Solutions[c.ID]
		if !explicit {
			templates = g.catalog.Solutions[Wildcard]
		}
		if len(templates) == 0 {
			continue
		}

		expand := strings.NewReplacer(
			"{conflict}", c.ID,
			"{resource}", c.ResourceName,
			"{date}", c.Date.String(),
		)
		solutions := make([]types.Solution, 0, len(templates))
		for _, tpl := range templates {
			s := tpl
			s.ConflictID = c.ID
			s.Description = expand.Replace(s.Description)
			s.Reasoning = expand.Replace(s.Reasoning)
			s.Impact.AffectedTasks = append([]string(nil), tpl.Impact.AffectedTasks...)
			if !explicit {
				s.ID = ""
			}
			solutions = append(solutions, s)
		}
		out[c.ID] = solutions
	}
	return out, nil
}
