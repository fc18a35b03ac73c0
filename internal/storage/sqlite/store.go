// Package sqlite persists run checkpoints and operator feedback in a single
// SQLite database. It serves the engine both as Checkpointer and as
// FeedbackSink, and keeps a queryable feedback table for reporting.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChuLiYu/conflict-engine/pkg/types"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed run and feedback store
type Store struct {
	DBPath string
	db     *sql.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; concurrent runs queue on the pool instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	store := &Store{DBPath: absPath, db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	execution_id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	total_conflicts INTEGER NOT NULL,
	critical_conflicts INTEGER NOT NULL,
	ranked_solutions INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	summary_json TEXT NOT NULL,
	context_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL,
	solution_id TEXT NOT NULL,
	accepted INTEGER NOT NULL,
	manager_rating INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	effectiveness REAL NOT NULL,
	strategy TEXT,
	components_json TEXT,
	context_json TEXT,
	submitted_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_feedback_execution ON feedback(execution_id, id);
CREATE INDEX IF NOT EXISTS idx_feedback_strategy ON feedback(strategy);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ============================================================================
// Runs
// ============================================================================

// Save upserts the checkpoint of rc
func (s *Store) Save(ctx context.Context, rc types.RunContext) error {
	if rc.ExecutionID == "" {
		return fmt.Errorf("%w: checkpoint without execution id", types.ErrInvalidInput)
	}
	summary := rc.Summary()

	contextJSON, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	updatedAt := summary.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (execution_id, stage, iterations, total_conflicts, critical_conflicts,
		                  ranked_solutions, updated_at, summary_json, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
		    stage = excluded.stage,
		    iterations = excluded.iterations,
		    total_conflicts = excluded.total_conflicts,
		    critical_conflicts = excluded.critical_conflicts,
		    ranked_solutions = excluded.ranked_solutions,
		    updated_at = excluded.updated_at,
		    summary_json = excluded.summary_json,
		    context_json = excluded.context_json
	`, rc.ExecutionID, string(rc.Stage), rc.Iterations, rc.TotalConflicts, rc.CriticalConflicts,
		len(rc.RankedSolutions), updatedAt.UTC().Format(time.RFC3339Nano), string(summaryJSON), string(contextJSON))
	if err != nil {
		return fmt.Errorf("save run %s: %w", rc.ExecutionID, err)
	}
	return nil
}

// Load returns the checkpoint of executionID
func (s *Store) Load(ctx context.Context, executionID string) (types.RunContext, error) {
	var contextJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT context_json FROM runs WHERE execution_id = ?", executionID,
	).Scan(&contextJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunContext{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, executionID)
	}
	if err != nil {
		return types.RunContext{}, fmt.Errorf("load run %s: %w", executionID, err)
	}

	var rc types.RunContext
	if err := json.Unmarshal([]byte(contextJSON), &rc); err != nil {
		return types.RunContext{}, fmt.Errorf("decode run %s: %w", executionID, err)
	}
	return rc, nil
}

// List returns every run summary ordered by execution id
func (s *Store) List(ctx context.Context) ([]types.Summary, error) {
	return s.querySummaries(ctx, "SELECT summary_json FROM runs ORDER BY execution_id")
}

// ListByStage returns the summaries of runs whose last stage is stage
func (s *Store) ListByStage(ctx context.Context, stage types.Stage) ([]types.Summary, error) {
	return s.querySummaries(ctx,
		"SELECT summary_json FROM runs WHERE stage = ? ORDER BY execution_id", string(stage))
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]types.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]types.Summary, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var summary types.Summary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ============================================================================
// Feedback
// ============================================================================

// RecordFeedback appends a feedback record
func (s *Store) RecordFeedback(ctx context.Context, fb types.Feedback) error {
	var componentsJSON, contextJSON sql.NullString
	if fb.Components != nil {
		raw, err := json.Marshal(fb.Components)
		if err != nil {
			return fmt.Errorf("marshal components: %w", err)
		}
		componentsJSON = sql.NullString{String: string(raw), Valid: true}
	}
	if len(fb.Context) > 0 {
		raw, err := json.Marshal(fb.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		contextJSON = sql.NullString{String: string(raw), Valid: true}
	}

	submittedAt := fb.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (execution_id, solution_id, accepted, manager_rating, outcome,
		                      effectiveness, strategy, components_json, context_json, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fb.ExecutionID, fb.SolutionID, fb.Accepted, fb.ManagerRating, string(fb.Outcome),
		fb.EffectivenessScore, string(fb.Strategy), componentsJSON, contextJSON,
		submittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// Feedback returns the feedback of one execution in submission order.
// An empty executionID returns every record.
func (s *Store) Feedback(ctx context.Context, executionID string) ([]types.Feedback, error) {
	query := `
		SELECT execution_id, solution_id, accepted, manager_rating, outcome,
		       effectiveness, strategy, components_json, context_json, submitted_at
		FROM feedback`
	var args []any
	if executionID != "" {
		query += " WHERE execution_id = ?"
		args = append(args, executionID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	out := make([]types.Feedback, 0)
	for rows.Next() {
		var fb types.Feedback
		var outcome, submittedAt string
		var strategy, componentsJSON, contextJSON sql.NullString
		if err := rows.Scan(&fb.ExecutionID, &fb.SolutionID, &fb.Accepted, &fb.ManagerRating, &outcome,
			&fb.EffectivenessScore, &strategy, &componentsJSON, &contextJSON, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}

		fb.Outcome = types.Outcome(outcome)
		fb.Strategy = types.Strategy(strategy.String)
		fb.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		if componentsJSON.Valid {
			var c types.Components
			if err := json.Unmarshal([]byte(componentsJSON.String), &c); err != nil {
				return nil, fmt.Errorf("decode components: %w", err)
			}
			fb.Components = &c
		}
		if contextJSON.Valid {
			if err := json.Unmarshal([]byte(contextJSON.String), &fb.Context); err != nil {
				return nil, fmt.Errorf("decode context: %w", err)
			}
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
