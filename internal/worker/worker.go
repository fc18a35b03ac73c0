// ============================================================================
// Conflict Engine Worker - analysis execution unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Runs analyses pulled from the pool's task channel, each Worker in
// its own goroutine
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ Context with timeout    │   │
//   │  │   ├─ analyzer.Analyze(task)  │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Timeout Control:
//   Each task gets its own context. When the deadline passes the engine fails
//   the run at the next stage boundary and the result carries the error.
//
// ============================================================================

package worker

import (
	"context"
	"time"
)

// Worker represents a work execution unit
type Worker struct {
	id       int
	analyzer Analyzer
	taskCh   <-chan Task
	resultCh chan<- Result
	quit     <-chan struct{}
}

func newWorker(id int, analyzer Analyzer, taskCh <-chan Task, resultCh chan<- Result, quit <-chan struct{}) *Worker {
	return &Worker{
		id:       id,
		analyzer: analyzer,
		taskCh:   taskCh,
		resultCh: resultCh,
		quit:     quit,
	}
}

// Run is the main loop of Worker; it returns when taskCh is closed
func (w *Worker) Run(parent context.Context) {
	for task := range w.taskCh {
		result := w.execute(parent, task)

		select {
		case w.resultCh <- result:
		case <-w.quit:
			log.Warn("dropping batch result after stop",
				"worker", w.id, "execution_id", result.ExecutionID)
		}
	}
}

func (w *Worker) execute(parent context.Context, task Task) Result {
	start := time.Now()

	ctx, cancel := parent, context.CancelFunc(func() {})
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, task.Timeout)
	}
	defer cancel()

	rc, err := w.analyzer.Analyze(ctx, task.Request)

	id := rc.ExecutionID
	if id == "" {
		id = task.Request.ExecutionID
	}
	if err != nil {
		log.Warn("batch analysis failed", "worker", w.id, "execution_id", id, "error", err)
	}
	return Result{
		ExecutionID: id,
		Context:     rc,
		Success:     err == nil,
		Error:       err,
		Duration:    time.Since(start),
	}
}
