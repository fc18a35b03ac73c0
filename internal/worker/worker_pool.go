// ============================================================================
// Conflict Engine Worker Pool - concurrent batch analysis
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Runs independent analyses on a fixed set of goroutines, one
// execution id per task
//
// Architecture:
//   ┌─────────────┐
//   │  RunBatch   │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool() - create the pool and its channels
//   2. Start(ctx, n) - launch n Worker goroutines
//   3. Submit(task) - queue an analysis
//   4. ReceiveResult(ctx) - read one finished analysis
//   5. Stop() - refuse new tasks, let workers finish queued ones, close resultCh
//
// Concurrency control:
//   - Submit sends under a read lock; Stop closes quit first so blocked
//     senders return, then takes the write lock before closing taskCh.
//     A send on a closed taskCh is therefore impossible.
//   - Results stay readable after Stop until resultCh is drained.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
)

var log = slog.Default()

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrPoolClosed is returned once the pool has been stopped
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted is returned by Submit before Start
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// ============================================================================
// Pool
// ============================================================================

// Pool manages a fixed number of concurrent Workers
type Pool struct {
	analyzer Analyzer
	workers  []*Worker
	taskCh   chan Task
	resultCh chan Result
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.RWMutex
}

// NewPool creates a pool that runs tasks through analyzer.
//
// Parameters:
//   - analyzer: the engine that executes each task
//   - bufferSize: capacity of the task and result channels
func NewPool(analyzer Analyzer, bufferSize int) *Pool {
	return &Pool{
		analyzer: analyzer,
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		quit:     make(chan struct{}),
	}
}

// Start launches workerCount workers. ctx is the parent of every task context.
func (p *Pool) Start(ctx context.Context, workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.analyzer, p.taskCh, p.resultCh, p.quit)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}

	p.started = true
	return nil
}

// Submit queues a task, blocking while the task buffer is full.
//
// Returns:
//   - ErrPoolNotStarted before Start
//   - ErrPoolClosed once Stop has been called
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}

	select {
	case p.taskCh <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// ReceiveResult returns the next finished task. After Stop it keeps draining
// buffered results, then returns ErrPoolClosed.
func (p *Pool) ReceiveResult(ctx context.Context) (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop shuts the pool down.
//  1. close quit, releasing blocked Submit calls
//  2. mark stopped and close taskCh
//  3. wait for workers to finish their queued tasks
//  4. close resultCh
func (p *Pool) Stop() {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return
	}

	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskCh)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.resultCh)
}

// GetWorkerCount returns the number of started workers
func (p *Pool) GetWorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// IsStarted reports whether Start has been called
func (p *Pool) IsStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// ============================================================================
// Batch
// ============================================================================

// BatchOptions configures RunBatch
type BatchOptions struct {
	Workers     int
	TaskTimeout time.Duration
}

// RunBatch analyzes every request concurrently and returns the results sorted
// by execution id. A failed analysis is reported in its Result; RunBatch only
// errors when ctx ends before every result is in.
func RunBatch(ctx context.Context, analyzer Analyzer, reqs []orchestrator.AnalysisRequest, opts BatchOptions) ([]Result, error) {
	pool := NewPool(analyzer, len(reqs))
	if err := pool.Start(ctx, opts.Workers); err != nil {
		return nil, err
	}
	defer pool.Stop()

	for _, req := range reqs {
		if err := pool.Submit(Task{Request: req, Timeout: opts.TaskTimeout}); err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(reqs))
	for range reqs {
		result, err := pool.ReceiveResult(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ExecutionID < results[j].ExecutionID })
	return results, nil
}
