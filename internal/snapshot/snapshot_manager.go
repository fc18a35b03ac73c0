package snapshot

// ============================================================================
// Responsibilities:
// 1. Serialize one RunContext per execution id to a JSON checkpoint file
// 2. Write atomically (temp file + rename) so a crash never leaves a torn file
// 3. Verify the schema version on load
// 4. Let the engine rebuild its registry from every checkpoint at startup
// ============================================================================

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

var log = slog.Default()

// ============================================================================
// Errors
// ============================================================================

var (
	ErrCorruptedCheckpoint = errors.New("checkpoint file is corrupted")
	ErrIncompatibleVersion = errors.New("checkpoint schema version is incompatible")
)

// SchemaVersion is the envelope version written by Save
const SchemaVersion = 1

const fileExt = ".json"

// ============================================================================
// Types
// ============================================================================

// envelope is the on-disk form of a checkpoint
type envelope struct {
	SchemaVer int              `json:"schema_version"`
	SavedAt   time.Time        `json:"saved_at"`
	Run       types.RunContext `json:"run"`
}

// Manager stores checkpoints as one file per execution id under a directory
type Manager struct {
	dir string
	mu  sync.Mutex // serialises writes and renames
	now func() time.Time
}

// NewManager creates the checkpoint directory if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Manager{dir: dir, now: time.Now}, nil
}

// Dir returns the checkpoint directory
func (m *Manager) Dir() string { return m.dir }

// path maps an execution id to its file; ids are escaped so they can never
// name a file outside dir
func (m *Manager) path(executionID string) string {
	return filepath.Join(m.dir, url.PathEscape(executionID)+fileExt)
}

// Save atomically writes the checkpoint of rc.
//
// Flow:
// 1. write <id>.json.tmp
// 2. os.Rename over <id>.json
func (m *Manager) Save(ctx context.Context, rc types.RunContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rc.ExecutionID == "" {
		return fmt.Errorf("%w: checkpoint without execution id", types.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(envelope{
		SchemaVer: SchemaVersion,
		SavedAt:   m.now().UTC(),
		Run:       rc,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := m.path(rc.ExecutionID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint of executionID.
//
// Returns:
//   - types.ErrRunNotFound when no checkpoint exists
//   - ErrCorruptedCheckpoint for unparseable files or an id mismatch
//   - ErrIncompatibleVersion for another schema version
func (m *Manager) Load(ctx context.Context, executionID string) (types.RunContext, error) {
	if err := ctx.Err(); err != nil {
		return types.RunContext{}, err
	}

	env, err := readEnvelope(m.path(executionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.RunContext{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, executionID)
		}
		return types.RunContext{}, err
	}
	if env.Run.ExecutionID != executionID {
		return types.RunContext{}, fmt.Errorf("%w: file holds run %q", ErrCorruptedCheckpoint, env.Run.ExecutionID)
	}
	return env.Run, nil
}

// Exists reports whether executionID has a checkpoint
func (m *Manager) Exists(executionID string) bool {
	_, err := os.Stat(m.path(executionID))
	return err == nil
}

// Delete removes the checkpoint of executionID; a missing file is not an error
func (m *Manager) Delete(executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path(executionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns the summary of every readable checkpoint, ordered by
// execution id. Unreadable files are logged and skipped so one damaged
// checkpoint cannot block recovery of the rest.
func (m *Manager) List(ctx context.Context) ([]types.Summary, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make([]types.Summary, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		env, err := readEnvelope(filepath.Join(m.dir, name))
		if err != nil {
			log.Warn("skipping checkpoint", "file", name, "error", err)
			continue
		}
		out = append(out, env.Run.Summary())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionID < out[j].ExecutionID })
	return out, nil
}

func readEnvelope(path string) (envelope, error) {
	var env envelope

	data, err := os.ReadFile(path)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrCorruptedCheckpoint, err)
	}
	if env.SchemaVer != SchemaVersion {
		return env, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, env.SchemaVer, SchemaVersion)
	}
	return env, nil
}
