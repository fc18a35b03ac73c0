// ============================================================================
// Conflict Engine - Run Registry
// ============================================================================
//
// Package: internal/registry
// File: registry.go
// Purpose: Track the lifecycle of every execution id held by this process
//
// Run status transitions:
//
//   (new) ──Begin──▶ running ──Checkpoint──▶ checkpointed
//                       │                         │
//                       └──Fail──▶ failed ◀───────┘ (via Begin + Fail)
//
//   checkpointed/failed ──Begin──▶ running   (feedback resumes a run)
//
// Rules:
//   - Begin on a running id returns ErrRunBusy; this is the only mechanism
//     that keeps two operations on one execution id from overlapping
//   - Checkpoint and Fail require the id to be running
//   - distinct ids never contend beyond the map lock
//   - Abandon undoes a Begin whose operation was rejected before any stage ran
//
// Snapshot/Restore:
//   The registry can be rebuilt from checkpointed summaries at startup.
//   Restored entries are never "running".
//
// ============================================================================

package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrRunBusy is returned when an execution id already has an operation in progress
	ErrRunBusy = errors.New("run is busy")
	// ErrRunNotFound is returned for an execution id the registry never saw
	ErrRunNotFound = errors.New("run not registered")
	// ErrNotRunning is returned when finishing a run that was not begun
	ErrNotRunning = errors.New("run not running")
)

// Status is the lifecycle state of an execution id
type Status string

const (
	StatusRunning      Status = "running"
	StatusCheckpointed Status = "checkpointed"
	StatusFailed       Status = "failed"
)

// Entry is the registry's view of one execution id
type Entry struct {
	ExecutionID string        `json:"execution_id"`
	Status      Status        `json:"status"`
	Summary     types.Summary `json:"summary"`
	LastError   string        `json:"last_error,omitempty"`
	Operations  int           `json:"operations"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	previous Status
}

// Registry is a concurrency-safe map of execution id to Entry
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Begin marks an execution id as running.
//
// Parameters:
//   - executionID: id of a new run, or of a checkpointed/failed run being resumed
//
// Returns:
//   - error: ErrRunBusy when the id is already running
func (r *Registry) Begin(executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, exists := r.entries[executionID]
	if !exists {
		entry = &Entry{
			ExecutionID: executionID,
			StartedAt:   now,
			Summary:     types.Summary{ExecutionID: executionID},
		}
		r.entries[executionID] = entry
	}
	if entry.Status == StatusRunning {
		return ErrRunBusy
	}

	entry.previous = entry.Status
	entry.Status = StatusRunning
	entry.Operations++
	entry.UpdatedAt = now
	return nil
}

// Checkpoint marks a running id as checkpointed with its latest summary
func (r *Registry) Checkpoint(summary types.Summary) error {
	return r.finish(summary.ExecutionID, StatusCheckpointed, summary, nil)
}

// Fail marks a running id as failed
func (r *Registry) Fail(executionID string, summary types.Summary, cause error) error {
	if summary.ExecutionID == "" {
		summary.ExecutionID = executionID
	}
	return r.finish(executionID, StatusFailed, summary, cause)
}

func (r *Registry) finish(executionID string, status Status, summary types.Summary, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[executionID]
	if !exists {
		return ErrRunNotFound
	}
	if entry.Status != StatusRunning {
		return ErrNotRunning
	}

	entry.Status = status
	entry.Summary = summary
	entry.LastError = ""
	if cause != nil {
		entry.LastError = cause.Error()
	}
	entry.UpdatedAt = r.now()
	return nil
}

// Abandon ends a running operation that changed nothing. The entry returns
// to the status it had before Begin; an entry Begin created is removed.
func (r *Registry) Abandon(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[executionID]
	if !exists || entry.Status != StatusRunning {
		return
	}
	if entry.previous == "" {
		delete(r.entries, executionID)
		return
	}
	entry.Status = entry.previous
	entry.Operations--
	entry.UpdatedAt = r.now()
}

// Get returns a copy of the entry for executionID
func (r *Registry) Get(executionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[executionID]
	if !exists {
		return Entry{}, false
	}
	return *entry, true
}

// Stats counts entries per status
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{
		string(StatusRunning):      0,
		string(StatusCheckpointed): 0,
		string(StatusFailed):       0,
	}
	for _, entry := range r.entries {
		stats[string(entry.Status)]++
	}
	return stats
}

// ============================================================================
// Snapshot / Restore
// ============================================================================

// Snapshot returns copies of all entries ordered by execution id
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionID < out[j].ExecutionID })
	return out
}

// Restore replaces the registry contents with entries.
// Entries recorded as running are restored as failed: whatever was running
// when they were captured did not finish.
func (r *Registry) Restore(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(entries))
	for i := range entries {
		entry := entries[i]
		if entry.Status == StatusRunning {
			entry.Status = StatusFailed
			if entry.LastError == "" {
				entry.LastError = "interrupted"
			}
		}
		r.entries[entry.ExecutionID] = &entry
	}
}

// EntryFromSummary builds a restorable entry for a checkpointed run
func EntryFromSummary(s types.Summary) Entry {
	status := StatusCheckpointed
	if s.Stage == types.StageFailed {
		status = StatusFailed
	}
	return Entry{
		ExecutionID: s.ExecutionID,
		Status:      status,
		Summary:     s,
		StartedAt:   s.UpdatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
