package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// MemoryCheckpointer keeps encoded run contexts in process memory.
// Contexts are stored as JSON so no slice is ever shared between a caller
// and the store.
type MemoryCheckpointer struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryCheckpointer creates an empty store
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{runs: make(map[string][]byte)}
}

// Save stores rc under its execution id, replacing any previous checkpoint
func (m *MemoryCheckpointer) Save(ctx context.Context, rc types.RunContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rc.ExecutionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rc.ExecutionID] = data
	return nil
}

// Load returns the checkpoint of executionID
func (m *MemoryCheckpointer) Load(ctx context.Context, executionID string) (types.RunContext, error) {
	if err := ctx.Err(); err != nil {
		return types.RunContext{}, err
	}

	m.mu.RLock()
	data, ok := m.runs[executionID]
	m.mu.RUnlock()
	if !ok {
		return types.RunContext{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, executionID)
	}

	var rc types.RunContext
	if err := json.Unmarshal(data, &rc); err != nil {
		return types.RunContext{}, fmt.Errorf("decode run %s: %w", executionID, err)
	}
	return rc, nil
}

// List returns the summary of every checkpoint ordered by execution id
func (m *MemoryCheckpointer) List(ctx context.Context) ([]types.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]types.Summary, 0, len(ids))
	for _, id := range ids {
		rc, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rc.Summary())
	}
	return out, nil
}
