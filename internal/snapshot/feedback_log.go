package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// FeedbackFile is the name of the feedback log inside a checkpoint directory.
// It never collides with a checkpoint, which always ends in ".json".
const FeedbackFile = "feedback.jsonl"

// FeedbackLog appends feedback records to a JSON-lines file, one record per
// line, synced on every append
type FeedbackLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFeedbackLog creates the parent directory of path if needed
func NewFeedbackLog(path string) (*FeedbackLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create feedback log dir: %w", err)
	}
	return &FeedbackLog{path: path, now: time.Now}, nil
}

// Path returns the log file path
func (l *FeedbackLog) Path() string { return l.path }

// RecordFeedback appends fb
func (l *FeedbackLog) RecordFeedback(ctx context.Context, fb types.Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = l.now()
	}
	fb.SubmittedAt = fb.SubmittedAt.UTC()

	line, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append feedback: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync feedback log: %w", err)
	}
	return f.Close()
}

// Feedback returns the records of one execution in append order. An empty
// executionID returns every record. Unparseable lines are logged and skipped.
func (l *FeedbackLog) Feedback(ctx context.Context, executionID string) ([]types.Feedback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Feedback, 0)
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open feedback log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var fb types.Feedback
		if err := json.Unmarshal(scanner.Bytes(), &fb); err != nil {
			log.Warn("skipping feedback line", "file", l.path, "line", line, "error", err)
			continue
		}
		if executionID == "" || fb.ExecutionID == executionID {
			out = append(out, fb)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feedback log: %w", err)
	}
	return out, nil
}
