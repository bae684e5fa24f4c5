// Package worker provides a bounded worker pool for batch analysis. Each
// task runs under its own wall-clock budget; one task exhausting its budget
// never aborts its siblings.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work processed by the pool.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Result is the outcome of one task.
type Result struct {
	TaskID   string
	Err      error
	Duration time.Duration
}

// Pool runs tasks on a fixed number of workers with a per-task timeout.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	workers int
	timeout time.Duration

	taskQueue  chan Task
	resultChan chan Result
	wg         sync.WaitGroup

	submitted int64
	completed int64
	failed    int64
}

// NewPool creates a pool. workers <= 0 defaults to the CPU count; the
// queue must be sized for the whole batch so Submit never blocks.
func NewPool(ctx context.Context, workers, queueSize int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		ctx:        poolCtx,
		cancel:     cancel,
		workers:    workers,
		timeout:    timeout,
		taskQueue:  make(chan Task, queueSize),
		resultChan: make(chan Result, queueSize),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop signals the workers to drain and waits for them to exit.
func (p *Pool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
	close(p.resultChan)
}

// Submit enqueues a task.
func (p *Pool) Submit(task Task) error {
	select {
	case p.taskQueue <- task:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Results returns the channel task outcomes arrive on.
func (p *Pool) Results() <-chan Result {
	return p.resultChan
}

// Stats reports pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Submitted: atomic.LoadInt64(&p.submitted),
		Completed: atomic.LoadInt64(&p.completed),
		Failed:    atomic.LoadInt64(&p.failed),
	}
}

// PoolStats describes pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// worker drains the queue until it is closed. Cancellation is handled at
// the task level: a cancelled pool context fails each remaining task fast,
// but every submitted task still produces a Result.
func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	start := time.Now()

	taskCtx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(p.ctx, p.timeout)
		defer cancel()
	}

	err := task.Execute(taskCtx)

	if err != nil {
		atomic.AddInt64(&p.failed, 1)
	} else {
		atomic.AddInt64(&p.completed, 1)
	}

	p.resultChan <- Result{
		TaskID:   task.ID(),
		Err:      err,
		Duration: time.Since(start),
	}
}
